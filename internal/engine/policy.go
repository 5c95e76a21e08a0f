package engine

import (
	"strings"

	"github.com/DeBounty-Network/escrow_layer/internal/domain/ledger"
	"github.com/DeBounty-Network/escrow_layer/internal/errors"
)

// AssignRule controls who may assign a worker to an open task.
type AssignRule string

// CompleteRule controls who may complete an assigned task.
type CompleteRule string

const (
	// AssignOpen lets any authenticated caller claim an open task for
	// themselves; an explicit assignee must match the caller.
	AssignOpen AssignRule = "open"
	// AssignCreator restricts assignment to the task creator, who names
	// the worker.
	AssignCreator AssignRule = "creator"

	// CompleteAssigneeOrCreator accepts completion from the assignee or
	// the task creator.
	CompleteAssigneeOrCreator CompleteRule = "assignee_or_creator"
	// CompleteAssignee accepts completion only from the assignee.
	CompleteAssignee CompleteRule = "assignee"
	// CompleteCreator accepts completion only from the task creator.
	CompleteCreator CompleteRule = "creator"
)

// Policy is the configurable authorization rule set for task transitions.
type Policy struct {
	Assign   AssignRule   `yaml:"assign"`
	Complete CompleteRule `yaml:"complete"`
}

// DefaultPolicy matches the original contract surface: workers self-assign
// and either party may settle completion.
func DefaultPolicy() Policy {
	return Policy{Assign: AssignOpen, Complete: CompleteAssigneeOrCreator}
}

// Normalize fills defaults and trims whitespace.
func (p *Policy) Normalize() {
	p.Assign = AssignRule(strings.TrimSpace(strings.ToLower(string(p.Assign))))
	if p.Assign == "" {
		p.Assign = AssignOpen
	}
	p.Complete = CompleteRule(strings.TrimSpace(strings.ToLower(string(p.Complete))))
	if p.Complete == "" {
		p.Complete = CompleteAssigneeOrCreator
	}
}

// Validate rejects unknown rule names.
func (p Policy) Validate() error {
	switch p.Assign {
	case AssignOpen, AssignCreator:
	default:
		return errors.InvalidArgument("unknown assign rule %q", p.Assign)
	}
	switch p.Complete {
	case CompleteAssigneeOrCreator, CompleteAssignee, CompleteCreator:
	default:
		return errors.InvalidArgument("unknown complete rule %q", p.Complete)
	}
	return nil
}

// ResolveAssignee authorizes an assignment and returns the account that
// will receive the task. The requested assignee may be empty, meaning the
// caller claims the task for themselves.
func (p Policy) ResolveAssignee(caller string, task ledger.Task, requested string) (string, error) {
	switch p.Assign {
	case AssignCreator:
		if caller != task.Creator {
			return "", errors.Unauthorized("only the creator of task %d may assign it", task.ID)
		}
		if requested == "" {
			return "", errors.InvalidArgument("assignee is required")
		}
		return requested, nil
	default: // AssignOpen
		if requested != "" && requested != caller {
			return "", errors.Unauthorized("callers may only claim task %d for themselves", task.ID)
		}
		return caller, nil
	}
}

// AuthorizeComplete checks whether the caller may complete the task.
func (p Policy) AuthorizeComplete(caller string, task ledger.Task) error {
	switch p.Complete {
	case CompleteAssignee:
		if caller != task.Assignee {
			return errors.Unauthorized("only the assignee may complete task %d", task.ID)
		}
	case CompleteCreator:
		if caller != task.Creator {
			return errors.Unauthorized("only the creator may complete task %d", task.ID)
		}
	default: // CompleteAssigneeOrCreator
		if caller != task.Assignee && caller != task.Creator {
			return errors.Unauthorized("caller may not complete task %d", task.ID)
		}
	}
	return nil
}
