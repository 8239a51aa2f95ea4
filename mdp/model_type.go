package mdp

import (
	"fmt"
	"strings"
)

type ModelType int

const (
	RMAX ModelType = iota
	C45TREE
	STUMP
	M5MULTI
	M5SINGLE
	M5ALLMULTI
	M5ALLSINGLE
	LSTMULTI
	LSTSINGLE
	ALLM5TYPES
)

var modelTypeNames = map[ModelType]string{
	RMAX:        "rmax",
	C45TREE:     "tree",
	STUMP:       "stump",
	M5MULTI:     "m5multi",
	M5SINGLE:    "m5single",
	M5ALLMULTI:  "m5allmulti",
	M5ALLSINGLE: "m5allsingle",
	LSTMULTI:    "lstmulti",
	LSTSINGLE:   "lstsingle",
	ALLM5TYPES:  "allm5types",
}

func (t ModelType) String() string {
	if name, ok := modelTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ModelType(%d)", int(t))
}

func ParseModelType(s string) (ModelType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range modelTypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownModelType, s)
}

func (t ModelType) MarshalYAML() (any, error) {
	return t.String(), nil
}

func (t *ModelType) UnmarshalText(text []byte) error {
	v, err := ParseModelType(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Continuous はリーフに線形モデルを持つ回帰木かどうか。
func (t ModelType) Continuous() bool {
	switch t {
	case M5MULTI, M5SINGLE, M5ALLMULTI, M5ALLSINGLE, LSTMULTI, LSTSINGLE, ALLM5TYPES:
		return true
	}
	return false
}
