package manager

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/lsst/qserv-replica/pkg/config"
	"github.com/lsst/qserv-replica/pkg/events"
	"github.com/lsst/qserv-replica/pkg/log"
	"github.com/lsst/qserv-replica/pkg/metrics"
)

func marshalCommand(cmd Command) ([]byte, error) {
	return json.Marshal(cmd)
}

// Manager replicates configuration mutations across controller
// replicas using Raft.
type Manager struct {
	nodeID   string
	bindAddr string
	dataDir  string

	raft        *raft.Raft
	fsm         *ConfigFSM
	store       config.Store
	eventBroker *events.Broker
}

// Config holds the parameters needed to create a Manager.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string
	Store    config.Store
}

// NewManager creates a Manager wrapping store with Raft-replicated apply.
func NewManager(cfg Config) (*Manager, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	fsm := NewConfigFSM(cfg.Store)
	broker := events.NewBroker()
	broker.Start()

	return &Manager{
		nodeID:      cfg.NodeID,
		bindAddr:    cfg.BindAddr,
		dataDir:     cfg.DataDir,
		fsm:         fsm,
		store:       cfg.Store,
		eventBroker: broker,
	}, nil
}

func raftConfig(nodeID string) *raft.Config {
	cfg := raft.DefaultConfig()
	cfg.LocalID = raft.ServerID(nodeID)

	// Tuned for LAN-deployed controller replicas: faster failure
	// detection and election than Raft's WAN-oriented defaults.
	cfg.HeartbeatTimeout = 500 * time.Millisecond
	cfg.ElectionTimeout = 500 * time.Millisecond
	cfg.LeaderLeaseTimeout = 250 * time.Millisecond
	return cfg
}

func (m *Manager) startRaft() (*raft.TCPTransport, error) {
	cfg := raftConfig(m.nodeID)

	addr, err := net.ResolveTCPAddr("tcp", m.bindAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(m.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create raft transport: %w", err)
	}
	snapshotStore, err := raft.NewFileSnapshotStore(m.dataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create snapshot store: %w", err)
	}
	logStore, err := raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("create raft log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("create raft stable store: %w", err)
	}

	r, err := raft.NewRaft(cfg, m.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("create raft node: %w", err)
	}
	m.raft = r
	return transport, nil
}

// Bootstrap initializes a new single-node Raft cluster rooted at this
// manager; subsequent replicas join it with AddVoter.
func (m *Manager) Bootstrap() error {
	transport, err := m.startRaft()
	if err != nil {
		return err
	}

	configuration := raft.Configuration{
		Servers: []raft.Server{{ID: raft.ServerID(m.nodeID), Address: transport.LocalAddr()}},
	}
	if err := m.raft.BootstrapCluster(configuration).Error(); err != nil {
		return fmt.Errorf("bootstrap raft cluster: %w", err)
	}
	log.WithComponent("manager").Info().Str("node_id", m.nodeID).Msg("bootstrapped configuration-apply cluster")
	return nil
}

// Join starts this manager's Raft participation without bootstrapping;
// the cluster leader must call AddVoter for this node separately.
func (m *Manager) Join() error {
	_, err := m.startRaft()
	return err
}

// AddVoter adds a new controller replica to the Raft cluster. Must be
// called on the current leader.
func (m *Manager) AddVoter(nodeID, address string) error {
	if m.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	if !m.IsLeader() {
		return fmt.Errorf("not the leader, current leader: %s", m.LeaderAddr())
	}
	return m.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, 10*time.Second).Error()
}

// RemoveServer removes a controller replica from the Raft cluster.
func (m *Manager) RemoveServer(nodeID string) error {
	if m.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	if !m.IsLeader() {
		return fmt.Errorf("not the leader")
	}
	return m.raft.RemoveServer(raft.ServerID(nodeID), 0, 10*time.Second).Error()
}

// IsLeader reports whether this manager currently holds Raft leadership.
func (m *Manager) IsLeader() bool {
	return m.raft != nil && m.raft.State() == raft.Leader
}

// LeaderAddr returns the bind address of the current Raft leader.
func (m *Manager) LeaderAddr() string {
	if m.raft == nil {
		return ""
	}
	return string(m.raft.Leader())
}

// WaitForLeader blocks until this replica observes a Raft leader
// (itself or another node) or timeout elapses.
func (m *Manager) WaitForLeader(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if m.raft != nil && m.raft.Leader() != "" {
			return nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	return fmt.Errorf("no raft leader elected within %s", timeout)
}

// GetEventBroker returns the manager's event broker.
func (m *Manager) GetEventBroker() *events.Broker {
	return m.eventBroker
}

// Apply submits cmd to the Raft log and waits for it to be committed
// and applied to the local FSM (and therefore the local store).
func (m *Manager) Apply(cmd Command) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RaftApplyDuration)

	if m.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	data, err := marshalCommand(cmd)
	if err != nil {
		return err
	}

	future := m.raft.Apply(data, 5*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("apply command: %w", err)
	}
	if resp := future.Response(); resp != nil {
		if err, ok := resp.(error); ok && err != nil {
			return err
		}
	}
	return nil
}

// Shutdown gracefully stops Raft participation.
func (m *Manager) Shutdown() error {
	m.eventBroker.Stop()
	if m.raft == nil {
		return nil
	}
	return m.raft.Shutdown().Error()
}
