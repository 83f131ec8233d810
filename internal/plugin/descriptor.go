package plugin

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DefaultPriority is applied to descriptors that leave Priority at zero.
const DefaultPriority = 50

// Descriptor is the immutable metadata a task declares about itself.
type Descriptor struct {
	Name        string `validate:"required"`
	Version     string
	Description string
	Author      string

	Capabilities       CapabilitySet
	Dependencies       []string      `validate:"dive,required"`
	Priority           int           `validate:"min=1,max=100"` // Lower runs earlier within a ready round
	ExecutionMode      ExecutionMode `validate:"min=0,max=2"`
	ParallelCompatible bool

	RequiredConfig ConfigSchema
	OptionalConfig ConfigSchema

	// Resources names shared resources this task touches. Members of one
	// parallel group that share a resource are serialized.
	Resources []string `validate:"dive,required"`
}

var descriptorValidator = validator.New(validator.WithRequiredStructEnabled())

// Normalized returns a copy with defaults applied and slices cloned.
func (d Descriptor) Normalized() Descriptor {
	cp := d
	cp.Name = strings.TrimSpace(d.Name)
	if cp.Priority == 0 {
		cp.Priority = DefaultPriority
	}
	cp.Dependencies = cloneStrings(d.Dependencies)
	cp.Resources = cloneStrings(d.Resources)
	cp.RequiredConfig = d.RequiredConfig.Clone()
	cp.OptionalConfig = d.OptionalConfig.Clone()
	return cp
}

// Validate checks the normalized descriptor for structural problems.
func (d Descriptor) Validate() error {
	if err := descriptorValidator.Struct(d); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("descriptor %q: %s", d.Name, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("descriptor %q: %w", d.Name, err)
	}
	seen := make(map[string]bool, len(d.Dependencies))
	for _, dep := range d.Dependencies {
		if dep == d.Name {
			return fmt.Errorf("descriptor %q: depends on itself", d.Name)
		}
		if seen[dep] {
			return fmt.Errorf("descriptor %q: dependency %q listed twice", d.Name, dep)
		}
		seen[dep] = true
	}
	for key := range d.RequiredConfig {
		if _, dup := d.OptionalConfig[key]; dup {
			return fmt.Errorf("descriptor %q: config key %q is both required and optional", d.Name, key)
		}
	}
	return nil
}

// ParallelEligible reports whether the task may join a parallel group.
func (d Descriptor) ParallelEligible() bool {
	return d.ExecutionMode == ModeParallel && d.ParallelCompatible
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
