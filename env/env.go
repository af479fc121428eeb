// Package env holds the substitution context: a keyed map of raw values
// run through an ordered list of transformation passes. All passes are
// required to be idempotent and commutative; an abort is only a hint and
// shouldn't be relied on. Lookups lazily replay the passes added since the
// value was last materialised.
package env

import "errors"

// Pass transforms one value. Returning an error wrapping an *AbortError
// records its result and suppresses the remaining passes for that key.
type Pass func(key, value string) (string, error)

// AbortError short-circuits the remaining passes for a single key while
// keeping a final result.
type AbortError struct {
	Result string
}

func (e *AbortError) Error() string {
	return "substitution aborted: " + e.Result
}

// Abort returns the error a pass raises to stop with result.
func Abort(result string) error {
	return &AbortError{Result: result}
}

type entry struct {
	val  string
	next int // index of the next pass to apply; -1 when aborted
}

// Environment maps keys to values under the registered passes.
type Environment struct {
	passes []Pass
	args   map[string]*entry
	keys   []string
}

// New returns an Environment seeded with the given values.
func New(args map[string]string) *Environment {
	e := &Environment{args: map[string]*entry{}}
	for k, v := range args {
		e.Set(k, v)
	}
	return e
}

func runPasses(key, val string, passes []Pass) (string, bool, error) {
	for _, p := range passes {
		v, err := p(key, val)
		if err != nil {
			var abort *AbortError
			if errors.As(err, &abort) {
				return abort.Result, false, nil
			}
			return val, false, err
		}
		val = v
	}
	return val, true, nil
}

// Run applies every registered pass to a transient value without storing
// it.
func (e *Environment) Run(key, value string) (string, error) {
	v, _, err := runPasses(key, value, e.passes)
	return v, err
}

// Set stores a raw value for key; passes will apply on the next lookup.
func (e *Environment) Set(key, value string) {
	if _, ok := e.args[key]; !ok {
		e.keys = append(e.keys, key)
	}
	e.args[key] = &entry{val: value}
}

// AddPass appends a transformation pass. Already-materialised values pick
// it up lazily on their next lookup.
func (e *Environment) AddPass(p Pass) {
	e.passes = append(e.passes, p)
}

func (e *Environment) materialise(key string, ent *entry) (string, error) {
	if ent.next < 0 {
		return ent.val, nil
	}
	v, cont, err := runPasses(key, ent.val, e.passes[ent.next:])
	if err != nil {
		return "", err
	}
	ent.val = v
	if cont {
		ent.next = len(e.passes)
	} else {
		ent.next = -1
	}
	return v, nil
}

// Get looks up key, replaying any passes added since the last access.
func (e *Environment) Get(key string) (string, bool) {
	ent, ok := e.args[key]
	if !ok {
		return "", false
	}
	v, err := e.materialise(key, ent)
	if err != nil {
		return "", false
	}
	return v, true
}

// Items yields the (key, materialised value) pairs in insertion order.
func (e *Environment) Items() []Item {
	out := make([]Item, 0, len(e.keys))
	for _, k := range e.keys {
		v, err := e.materialise(k, e.args[k])
		if err != nil {
			continue
		}
		out = append(out, Item{Key: k, Value: v})
	}
	return out
}

// Item is one environment pair.
type Item struct {
	Key   string
	Value string
}

// Empty reports whether the environment holds no values at all.
func (e *Environment) Empty() bool {
	return len(e.args) == 0
}
