package artifact

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"shortvideo/internal/services"
)

const (
	defaultTenant  = "default"
	defaultProject = "default"
	legacyPrefix   = "tasks"
	stagingDir     = ".staging"
)

var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// Namespace scopes every artifact key to one task.
type Namespace struct {
	Tenant  string
	Project string
	TaskID  string
}

// NewNamespace builds a namespace, defaulting tenant and project.
func NewNamespace(tenant, project, taskID string) Namespace {
	ns := Namespace{Tenant: strings.TrimSpace(tenant), Project: strings.TrimSpace(project), TaskID: strings.TrimSpace(taskID)}
	if ns.Tenant == "" {
		ns.Tenant = defaultTenant
	}
	if ns.Project == "" {
		ns.Project = defaultProject
	}
	return ns
}

// Validate rejects segments that could escape the namespace once joined into a key.
func (n Namespace) Validate() error {
	for _, segment := range []struct{ name, value string }{
		{"tenant", n.Tenant},
		{"project", n.Project},
		{"task id", n.TaskID},
	} {
		if !validSegment(segment.value) {
			return services.Wrap(services.ErrValidation, "", "artifact", fmt.Sprintf("invalid %s %q", segment.name, segment.value), nil)
		}
	}
	return nil
}

// Key returns the primary storage key for the kind.
func (n Namespace) Key(kind Kind) (string, error) {
	if err := n.checkKind(kind); err != nil {
		return "", err
	}
	return strings.Join([]string{n.Tenant, n.Project, n.TaskID, kind.Path()}, "/"), nil
}

// StagingKey returns the key a run writes to before its outputs are
// promoted: {tenant}/{project}/{task}/.staging/{attempt}/{path}.
func (n Namespace) StagingKey(kind Kind, attempt int) (string, error) {
	if err := n.checkKind(kind); err != nil {
		return "", err
	}
	if attempt < 1 {
		return "", services.Wrap(services.ErrValidation, "", "artifact", fmt.Sprintf("invalid attempt %d", attempt), nil)
	}
	return strings.Join([]string{n.Tenant, n.Project, n.TaskID, stagingDir, strconv.Itoa(attempt), kind.Path()}, "/"), nil
}

// LegacyKey returns the pre-migration key for the kind: tasks/{task_id}/{file}.
func (n Namespace) LegacyKey(kind Kind) (string, error) {
	if err := n.checkKind(kind); err != nil {
		return "", err
	}
	return strings.Join([]string{legacyPrefix, n.TaskID, kindSpecs[kind].legacyName}, "/"), nil
}

func (n Namespace) checkKind(kind Kind) error {
	if err := n.Validate(); err != nil {
		return err
	}
	if !kind.Valid() {
		return services.Wrap(services.ErrValidation, "", "artifact", fmt.Sprintf("unknown artifact kind %q", kind), nil)
	}
	return nil
}

func validSegment(value string) bool {
	if value == "." || value == ".." || strings.Contains(value, "..") {
		return false
	}
	return segmentPattern.MatchString(value)
}
