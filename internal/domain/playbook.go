package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// ActionKind tags which variant an Action carries.
type ActionKind string

const (
	ActionExecShell          ActionKind = "exec_shell"
	ActionKindRestartService ActionKind = "restart_service"
	ActionKindRedeploy       ActionKind = "redeploy"
	ActionKindRollback       ActionKind = "rollback"
	ActionKindWaitSeconds    ActionKind = "wait_seconds"
	ActionKindAssertFp       ActionKind = "assert_fingerprint"
)

var knownActionKinds = map[ActionKind]bool{
	ActionExecShell:          true,
	ActionKindRestartService: true,
	ActionKindRedeploy:       true,
	ActionKindRollback:       true,
	ActionKindWaitSeconds:    true,
	ActionKindAssertFp:       true,
}

// Action is a tagged-variant remediation action a playbook step (or a step's
// rollback) performs. Only the field matching Kind is meaningful.
type Action struct {
	Kind ActionKind `json:"kind" yaml:"kind"`

	Cmd             string `json:"cmd,omitempty" yaml:"cmd,omitempty"`                           // ExecShell
	ServiceName     string `json:"service_name,omitempty" yaml:"service_name,omitempty"`          // RestartService
	ConfigPath      string `json:"config_path,omitempty" yaml:"config_path,omitempty"`            // Redeploy
	Generation      *int   `json:"generation,omitempty" yaml:"generation,omitempty"`              // Rollback (nil = previous)
	WaitSeconds     int    `json:"wait_seconds,omitempty" yaml:"wait_seconds,omitempty"`          // WaitSeconds
	ExpectedFingerprint string `json:"expected_fingerprint,omitempty" yaml:"expected_fingerprint,omitempty"` // AssertFingerprint
}

// Step is one entry in a Playbook's sequenced execution.
type Step struct {
	ID                string                 `json:"id" yaml:"id"`
	Name              string                 `json:"name" yaml:"name"`
	Action            Action                 `json:"action" yaml:"action"`
	Params            map[string]interface{} `json:"params,omitempty" yaml:"params,omitempty"`
	TimeoutSeconds    int                    `json:"timeout_seconds" yaml:"timeout_seconds"`
	Rollback          *Action                `json:"rollback,omitempty" yaml:"rollback,omitempty"`
	ContinueOnFailure bool                   `json:"continue_on_failure" yaml:"continue_on_failure"`
}

// Playbook is an ordered, validated sequence of remediation steps.
type Playbook struct {
	ID            string   `json:"id" yaml:"id"`
	Name          string   `json:"name" yaml:"name"`
	Version       string   `json:"version" yaml:"version"`
	Steps         []Step   `json:"steps" yaml:"steps"`
	Preconditions []string `json:"preconditions,omitempty" yaml:"preconditions,omitempty"`
	Triggers      []string `json:"triggers,omitempty" yaml:"triggers,omitempty"`
	Validated     bool     `json:"-" yaml:"-"`
	Checksum      string   `json:"checksum,omitempty" yaml:"checksum,omitempty"`
}

// Validate checks the structural invariants spec §3 requires of a playbook:
// no duplicate step ids, only known action tags, positive timeouts. On
// success it returns a new Playbook with Validated=true and Checksum filled
// in from the canonicalized content; it never mutates the receiver.
func (p Playbook) Validate() (Playbook, error) {
	seen := make(map[string]bool, len(p.Steps))
	for _, s := range p.Steps {
		if s.ID == "" {
			return p, fmt.Errorf("%w: step with empty id in playbook %q", ErrValidation, p.ID)
		}
		if seen[s.ID] {
			return p, fmt.Errorf("%w: duplicate step id %q in playbook %q", ErrValidation, s.ID, p.ID)
		}
		seen[s.ID] = true

		if !knownActionKinds[s.Action.Kind] {
			return p, fmt.Errorf("%w: unknown action kind %q in step %q", ErrValidation, s.Action.Kind, s.ID)
		}
		if s.Rollback != nil && !knownActionKinds[s.Rollback.Kind] {
			return p, fmt.Errorf("%w: unknown rollback action kind %q in step %q", ErrValidation, s.Rollback.Kind, s.ID)
		}
		if s.TimeoutSeconds <= 0 {
			return p, fmt.Errorf("%w: step %q must have a positive timeout", ErrValidation, s.ID)
		}
	}

	checksum, err := p.computeChecksum()
	if err != nil {
		return p, fmt.Errorf("%w: checksum: %v", ErrValidation, err)
	}

	out := p
	out.Validated = true
	out.Checksum = checksum
	return out, nil
}

// computeChecksum hashes the canonicalized (name, version, steps) tuple.
// Canonicalization recursively sorts map keys so the digest is stable
// regardless of field iteration order, mirroring the teacher's
// jsonMarshalSorted approach to deterministic signing input.
func (p Playbook) computeChecksum() (string, error) {
	raw, err := json.Marshal(struct {
		Name    string `json:"name"`
		Version string `json:"version"`
		Steps   []Step `json:"steps"`
	}{p.Name, p.Version, p.Steps})
	if err != nil {
		return "", err
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", err
	}
	canonical, err := marshalSorted(generic)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// marshalSorted re-serializes v with object keys sorted, so two playbooks
// with identical content but differently-ordered maps produce the same
// checksum.
func marshalSorted(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf := []byte("{")
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			kJSON, _ := json.Marshal(k)
			buf = append(buf, kJSON...)
			buf = append(buf, ':')
			vJSON, err := marshalSorted(val[k])
			if err != nil {
				return nil, err
			}
			buf = append(buf, vJSON...)
		}
		buf = append(buf, '}')
		return buf, nil

	case []interface{}:
		buf := []byte("[")
		for i, item := range val {
			if i > 0 {
				buf = append(buf, ',')
			}
			itemJSON, err := marshalSorted(item)
			if err != nil {
				return nil, err
			}
			buf = append(buf, itemJSON...)
		}
		buf = append(buf, ']')
		return buf, nil

	default:
		return json.Marshal(v)
	}
}

// StepState is a playbook step's terminal (or in-flight) execution state.
type StepState string

const (
	StepPending StepState = "PENDING"
	StepRunning StepState = "RUNNING"
	StepOK      StepState = "OK"
	StepFail    StepState = "FAIL"
	StepTimeout StepState = "TIMEOUT"
	StepDenied  StepState = "DENIED"
)

// StepResult records one step's outcome in declaration order.
type StepResult struct {
	StepID   string        `json:"step_id"`
	State    StepState     `json:"state"`
	Duration float64       `json:"duration_seconds"`
	Error    string        `json:"error,omitempty"`
}
