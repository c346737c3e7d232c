package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// defaultSSHPort is used when a target string omits a port.
const defaultSSHPort = 22

// Node identifies a fleet member reachable over SSH/WinRM.
type Node struct {
	Host        string
	User        string
	Port        int
	DisplayName string
}

// ParseNode parses a "user@host[:port]" target string. Port defaults to 22.
func ParseNode(target string) (Node, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return Node{}, fmt.Errorf("%w: empty target", ErrValidation)
	}

	userHost := strings.SplitN(target, "@", 2)
	if len(userHost) != 2 || userHost[0] == "" || userHost[1] == "" {
		return Node{}, fmt.Errorf("%w: target %q must be user@host[:port]", ErrValidation, target)
	}
	user := userHost[0]

	hostPort := userHost[1]
	host := hostPort
	port := defaultSSHPort

	if idx := strings.LastIndex(hostPort, ":"); idx != -1 {
		host = hostPort[:idx]
		portStr := hostPort[idx+1:]
		p, err := strconv.Atoi(portStr)
		if err != nil || p <= 0 || p > 65535 {
			return Node{}, fmt.Errorf("%w: invalid port in target %q", ErrValidation, target)
		}
		port = p
	}
	if host == "" {
		return Node{}, fmt.Errorf("%w: empty host in target %q", ErrValidation, target)
	}

	return Node{Host: host, User: user, Port: port}, nil
}

// ParseTargets splits a comma-separated TARGETS string (spec §6.2) into Nodes.
func ParseTargets(targets string) ([]Node, error) {
	parts := strings.Split(targets, ",")
	nodes := make([]Node, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := ParseNode(p)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: no targets specified", ErrValidation)
	}
	return nodes, nil
}

// WithDisplayName returns a copy of n with DisplayName set.
func (n Node) WithDisplayName(name string) Node {
	n.DisplayName = name
	return n
}

// Equal compares nodes by (host, user, port) — DisplayName is cosmetic.
func (n Node) Equal(other Node) bool {
	return n.Host == other.Host && n.User == other.User && n.Port == other.Port
}

// ID returns a stable map key for this node, e.g. in AgentRegistry.
func (n Node) ID() string {
	return fmt.Sprintf("%s@%s:%d", n.User, n.Host, n.Port)
}

// String renders the node back as "user@host:port".
func (n Node) String() string {
	return n.ID()
}
