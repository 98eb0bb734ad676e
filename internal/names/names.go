// Package names computes and caches the textual identifiers that script
// fragments use to refer to program methods.
package names

import (
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/715d/defender/pkg/jast"
)

// Cache provides memoized member identifiers keyed by stable method keys.
// It is safe for concurrent use, so one Cache can serve several programs
// lowered in parallel.
type Cache struct {
	idents *xsync.Map[jast.MethodKey, string]
}

func NewCache() *Cache {
	return &Cache{
		idents: xsync.NewMap[jast.MethodKey, string](),
	}
}

// MemberIdent returns the fragment identifier "@Type::name(descriptors)"
// for m. Two programs declaring the same type and signature share the
// cached identifier.
func (c *Cache) MemberIdent(m *jast.Method) string {
	ident, ok := c.idents.Load(m.Key())
	if ok {
		return ident
	}
	ident = "@" + m.MemberSignature()
	c.idents.Store(m.Key(), ident)
	return ident
}

// Index maps the member identifier of every method of p to the method.
// When two methods produce the same identifier the first declared wins.
func (c *Cache) Index(p *jast.Program) map[string]*jast.Method {
	idx := make(map[string]*jast.Method, p.NumMethods())
	for _, t := range p.Types() {
		for _, m := range t.Methods() {
			ident := c.MemberIdent(m)
			if _, ok := idx[ident]; !ok {
				idx[ident] = m
			}
		}
	}
	return idx
}

// Len returns the number of cached identifiers.
func (c *Cache) Len() int {
	return c.idents.Size()
}
