package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func i32Const(v int32) Const {
	c := Const{I32: v}
	c.Type = I32
	return c
}

func TestNormalizeAcceptsInScopeBreak(t *testing.T) {
	mod := &Module{
		Funcs: []Function{
			{
				Name: "loop_sum",
				Body: &Block{
					Children: []Expr{
						Loop{
							Name: "top",
							Body: &Block{
								Children: []Expr{
									Break{Name: "top", Cond: i32Const(1)},
								},
							},
						},
					},
				},
			},
		},
	}

	assert.NoError(t, Normalize(mod))
}

func TestNormalizeRejectsOutOfScopeBreak(t *testing.T) {
	mod := &Module{
		Funcs: []Function{
			{
				Name: "bad",
				Body: &Block{
					Children: []Expr{
						Break{Name: "nowhere"},
					},
				},
			},
		},
	}

	assert.Error(t, Normalize(mod))
}

func TestNormalizeRejectsBreakWithValue(t *testing.T) {
	mod := &Module{
		Funcs: []Function{
			{
				Name: "bad",
				Body: &Block{
					Name: "b",
					Children: []Expr{
						Block{
							Name: "b",
							Children: []Expr{
								Break{Name: "b", Value: i32Const(1)},
							},
						},
					},
				},
			},
		},
	}

	assert.Error(t, Normalize(mod))
}

func TestNormalizeLabelScopeClosesAfterBlock(t *testing.T) {
	// "inner" is only in scope inside the first block; reusing the same
	// name in a sibling block, after the first has closed, is legal.
	mod := &Module{
		Funcs: []Function{
			{
				Name: "reuse",
				Body: &Block{
					Children: []Expr{
						Block{Name: "inner", Children: []Expr{Break{Name: "inner"}}},
						Block{Name: "inner", Children: []Expr{Break{Name: "inner"}}},
					},
				},
			},
		},
	}

	assert.NoError(t, Normalize(mod))
}

func TestNormalizeRejectsSwitchWithOutOfScopeDefault(t *testing.T) {
	mod := &Module{
		Funcs: []Function{
			{
				Name: "bad",
				Body: &Block{
					Children: []Expr{
						Block{Name: "only", Children: []Expr{
							Switch{Cond: i32Const(0), Names: []string{"only"}, DefaultName: "missing"},
						}},
					},
				},
			},
		},
	}

	assert.Error(t, Normalize(mod))
}
