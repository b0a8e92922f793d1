/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package memtable

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/suparena/entitymapper/errors"
)

// conditions compiles write guards once and evaluates them against the
// current row. A guard sees every live column by name plus:
//
//	exists  bool            whether the row holds any live column
//	row     map[string]any  the live columns
//
// e.g. "!exists" or "exists && version == 3".
type conditions struct {
	programs map[string]*vm.Program
}

func newConditions() *conditions {
	return &conditions{programs: make(map[string]*vm.Program)}
}

func (c *conditions) compile(condition string) (*vm.Program, error) {
	if program, ok := c.programs[condition]; ok {
		return program, nil
	}
	program, err := expr.Compile(condition,
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, errors.NewValidationError("condition", fmt.Sprintf("invalid condition %q: %v", condition, err))
	}
	c.programs[condition] = program
	return program, nil
}

// check returns a ConditionFailedError when condition does not hold for row.
// A nil row is a missing one.
func (c *conditions) check(op, condition string, row map[string]any) error {
	if condition == "" {
		return nil
	}
	program, err := c.compile(condition)
	if err != nil {
		return err
	}
	env := make(map[string]any, len(row)+2)
	for k, v := range row {
		env[k] = v
	}
	env["exists"] = len(row) > 0
	env["row"] = row
	out, err := expr.Run(program, env)
	if err != nil {
		return errors.NewValidationError("condition", fmt.Sprintf("condition %q failed to evaluate: %v", condition, err))
	}
	if ok, _ := out.(bool); !ok {
		return errors.NewConditionFailedError(op, condition)
	}
	return nil
}
