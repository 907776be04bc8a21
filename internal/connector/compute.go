package connector

import "gopkg.in/yaml.v3"

// Compute is a table-to-table transform. Column numbers are 1-based.
type Compute interface {
	Kind() string
	Serialized() bool
}

const (
	KindKeepOnlyMatchingLines = "keepOnlyMatchingLines"
	KindExcludeMatchingLines  = "excludeMatchingLines"
	KindKeepColumns           = "keepColumns"
	KindDuplicateColumn       = "duplicateColumn"
	KindLeftConcat            = "leftConcat"
	KindRightConcat           = "rightConcat"
	KindAdd                   = "add"
	KindSubtract              = "subtract"
	KindMultiply              = "multiply"
	KindDivide                = "divide"
	KindReplace               = "replace"
	KindTranslate             = "translate"
	KindExtract               = "extract"
	KindSubstring             = "substring"
	KindConvert               = "convert"
	KindAnd                   = "and"
)

// LineFilter keeps or excludes rows whose column matches RegExp or one of
// the comma-separated ValueList entries.
type LineFilter struct {
	Serialization `yaml:",inline"`
	Exclude       bool   `yaml:"-"`
	Column        int    `yaml:"column"`
	RegExp        string `yaml:"regExp"`
	ValueList     string `yaml:"valueList"`
}

func (f *LineFilter) Kind() string {
	if f.Exclude {
		return KindExcludeMatchingLines
	}
	return KindKeepOnlyMatchingLines
}

type KeepColumns struct {
	Serialization `yaml:",inline"`
	ColumnNumbers string `yaml:"columnNumbers"`
}

func (*KeepColumns) Kind() string { return KindKeepColumns }

type DuplicateColumn struct {
	Serialization `yaml:",inline"`
	Column        int `yaml:"column"`
}

func (*DuplicateColumn) Kind() string { return KindDuplicateColumn }

// Concat prepends (left) or appends (right) Value to a column. Value may be
// a $n column reference.
type Concat struct {
	Serialization `yaml:",inline"`
	Right         bool   `yaml:"-"`
	Column        int    `yaml:"column"`
	Value         string `yaml:"value"`
}

func (c *Concat) Kind() string {
	if c.Right {
		return KindRightConcat
	}
	return KindLeftConcat
}

// Arithmetic applies Operation to a column with a literal or $n operand.
type Arithmetic struct {
	Serialization `yaml:",inline"`
	Operation     string `yaml:"-"`
	Column        int    `yaml:"column"`
	Value         string `yaml:"value"`
}

func (a *Arithmetic) Kind() string { return a.Operation }

type Replace struct {
	Serialization `yaml:",inline"`
	Column        int    `yaml:"column"`
	ExistingValue string `yaml:"existingValue"`
	NewValue      string `yaml:"newValue"`
}

func (*Replace) Kind() string { return KindReplace }

// Translate maps column values through TranslationTable, case-insensitively.
// Unknown values become DefaultValue, or are kept when DefaultValue is empty.
type Translate struct {
	Serialization    `yaml:",inline"`
	Column           int               `yaml:"column"`
	TranslationTable map[string]string `yaml:"translationTable"`
	DefaultValue     string            `yaml:"defaultValue"`
}

func (*Translate) Kind() string { return KindTranslate }

// Extract replaces a column with one of its sub-columns.
type Extract struct {
	Serialization `yaml:",inline"`
	Column        int    `yaml:"column"`
	SubColumn     int    `yaml:"subColumn"`
	SubSeparators string `yaml:"subSeparators"`
}

func (*Extract) Kind() string { return KindExtract }

// Substring keeps Length characters from the 1-based Start.
type Substring struct {
	Serialization `yaml:",inline"`
	Column        int `yaml:"column"`
	Start         int `yaml:"start"`
	Length        int `yaml:"length"`
}

func (*Substring) Kind() string { return KindSubstring }

const (
	ConversionHex2Dec      = "hex2Dec"
	ConversionArray2Simple = "array2Simple"
)

type Convert struct {
	Serialization  `yaml:",inline"`
	Column         int    `yaml:"column"`
	ConversionType string `yaml:"conversionType"`
}

func (*Convert) Kind() string { return KindConvert }

// And is a bitwise AND of an integer column with Value.
type And struct {
	Serialization `yaml:",inline"`
	Column        int    `yaml:"column"`
	Value         string `yaml:"value"`
}

func (*And) Kind() string { return KindAnd }

var computeFactories = map[string]func() Compute{
	KindKeepOnlyMatchingLines: func() Compute { return &LineFilter{} },
	KindExcludeMatchingLines:  func() Compute { return &LineFilter{Exclude: true} },
	KindKeepColumns:           func() Compute { return &KeepColumns{} },
	KindDuplicateColumn:       func() Compute { return &DuplicateColumn{} },
	KindLeftConcat:            func() Compute { return &Concat{} },
	KindRightConcat:           func() Compute { return &Concat{Right: true} },
	KindAdd:                   func() Compute { return &Arithmetic{Operation: KindAdd} },
	KindSubtract:              func() Compute { return &Arithmetic{Operation: KindSubtract} },
	KindMultiply:              func() Compute { return &Arithmetic{Operation: KindMultiply} },
	KindDivide:                func() Compute { return &Arithmetic{Operation: KindDivide} },
	KindReplace:               func() Compute { return &Replace{} },
	KindTranslate:             func() Compute { return &Translate{} },
	KindExtract:               func() Compute { return &Extract{} },
	KindSubstring:             func() Compute { return &Substring{} },
	KindConvert:               func() Compute { return &Convert{} },
	KindAnd:                   func() Compute { return &And{} },
}

// Computes is applied strictly in order.
type Computes []Compute

func (c *Computes) UnmarshalYAML(node *yaml.Node) error {
	list, err := decodeSequence(node, computeFactories, "compute")
	if err != nil {
		return err
	}
	*c = list
	return nil
}
