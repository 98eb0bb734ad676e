package progfile

import (
	"fmt"

	yaml "gopkg.in/yaml.v3"
)

// file is the top level of a program description.
type file struct {
	Version string     `yaml:"version"`
	Types   []typeDecl `yaml:"types"`
}

type typeDecl struct {
	Name       string       `yaml:"name"`
	Kind       string       `yaml:"kind"` // "class" (default) or "interface"
	Extends    nameList     `yaml:"extends"`
	Implements nameList     `yaml:"implements"`
	Abstract   bool         `yaml:"abstract"`
	Methods    []methodDecl `yaml:"methods"`

	line int
}

func (d *typeDecl) UnmarshalYAML(n *yaml.Node) error {
	type plain typeDecl
	if err := n.Decode((*plain)(d)); err != nil {
		return err
	}
	d.line = n.Line
	return nil
}

type methodDecl struct {
	Name     string      `yaml:"name"`
	Params   []paramDecl `yaml:"params"`
	Returns  string      `yaml:"returns"`
	Access   string      `yaml:"access"`
	Static   bool        `yaml:"static"`
	Abstract bool        `yaml:"abstract"`
	Final    bool        `yaml:"final"`
	Throws   []string    `yaml:"throws"`

	// Native holds the script fragment of a native method.
	Native *string `yaml:"native"`
	// Body holds the statements of a method with a typed body. A zero
	// node means no body.
	Body yaml.Node `yaml:"body"`

	line int
}

func (d *methodDecl) UnmarshalYAML(n *yaml.Node) error {
	type plain methodDecl
	if err := n.Decode((*plain)(d)); err != nil {
		return err
	}
	d.line = n.Line
	return nil
}

type paramDecl struct {
	Name  string `yaml:"name"`
	Type  string `yaml:"type"`
	Final bool   `yaml:"final"`

	line int
}

func (d *paramDecl) UnmarshalYAML(n *yaml.Node) error {
	type plain paramDecl
	if err := n.Decode((*plain)(d)); err != nil {
		return err
	}
	d.line = n.Line
	return nil
}

// nameList accepts a single name or a sequence of names.
type nameList []string

func (l *nameList) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		*l = nameList{n.Value}
		return nil
	case yaml.SequenceNode:
		var names []string
		if err := n.Decode(&names); err != nil {
			return err
		}
		*l = names
		return nil
	}
	return fmt.Errorf("line %d: expected a name or a list of names", n.Line)
}

// exprDecl is the mapping form of an expression.
type exprDecl struct {
	Lit  *string     `yaml:"lit"`
	Type string      `yaml:"type"`
	Call string      `yaml:"call"`
	On   yaml.Node   `yaml:"on"`
	Args []yaml.Node `yaml:"args"`
}

type localDecl struct {
	Name string    `yaml:"name"`
	Type string    `yaml:"type"`
	Init yaml.Node `yaml:"init"`
}
