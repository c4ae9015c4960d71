package orchestrator

import (
	"fmt"
	"sync"

	"github.com/frankbria/codeframe-sub011/pkg/models"
)

// Pool hands out agents under per-type concurrency limits. Admission is
// try-based: a full type is an expected outcome the scheduler polls again
// later, not an error.
type Pool struct {
	mu     sync.Mutex
	limits map[models.AgentType]int
	agents map[string]*models.Agent
	busy   map[models.AgentType]int
	leases map[string]*Lease
}

// NewPool creates a Pool with the given per-type limits. Types absent from
// the map get no slots at all.
func NewPool(limits map[models.AgentType]int) *Pool {
	l := make(map[models.AgentType]int, len(limits))
	for t, n := range limits {
		l[t] = n
	}
	return &Pool{
		limits: l,
		agents: make(map[string]*models.Agent),
		busy:   make(map[models.AgentType]int),
		leases: make(map[string]*Lease),
	}
}

// Register adds an agent to the pool. Duplicate IDs are rejected.
func (p *Pool) Register(agent *models.Agent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.agents[agent.ID]; exists {
		return fmt.Errorf("agent %s already registered", agent.ID)
	}
	p.agents[agent.ID] = agent
	return nil
}

// Lease is the right to run one task on one agent. Release returns the
// agent to the pool; releasing twice is a no-op.
type Lease struct {
	Agent  *models.Agent
	TaskID string

	pool     *Pool
	released bool
}

// TryAdmit claims an idle agent of the given type. Returns (nil, false)
// when every slot for the type is busy or no idle agent exists; the caller
// retries on the next scheduling pass. A leased agent is never handed out
// again until its lease is released, so one agent executes at most one task
// at a time.
func (p *Pool) TryAdmit(agentType models.AgentType, taskID string) (*Lease, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.busy[agentType] >= p.limits[agentType] {
		return nil, false
	}

	var agent *models.Agent
	for _, a := range p.agents {
		if a.Type == agentType && a.Status == models.AgentStatusIdle {
			agent = a
			break
		}
	}
	if agent == nil {
		return nil, false
	}

	agent.Status = models.AgentStatusWorking
	agent.CurrentTaskID = taskID
	p.busy[agentType]++

	lease := &Lease{Agent: agent, TaskID: taskID, pool: p}
	p.leases[agent.ID] = lease
	return lease, true
}

// Release returns the agent to the pool with the given status (idle for a
// finished task, blocked while its task waits on a human).
func (l *Lease) Release(status models.AgentStatus) {
	p := l.pool
	p.mu.Lock()
	defer p.mu.Unlock()

	if l.released {
		return
	}
	l.released = true

	l.Agent.Status = status
	if status != models.AgentStatusBlocked {
		l.Agent.CurrentTaskID = ""
	}
	p.busy[l.Agent.Type]--
	delete(p.leases, l.Agent.ID)
}

// MarkIdle moves a blocked agent back to idle, typically after its blocker
// was resolved.
func (p *Pool) MarkIdle(agentID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if a, ok := p.agents[agentID]; ok && a.Status == models.AgentStatusBlocked {
		a.Status = models.AgentStatusIdle
		a.CurrentTaskID = ""
	}
}

// Busy returns the admitted count for a type.
func (p *Pool) Busy(agentType models.AgentType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.busy[agentType]
}

// Limit returns the slot count for a type.
func (p *Pool) Limit(agentType models.AgentType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.limits[agentType]
}

// Agents returns all registered agents.
func (p *Pool) Agents() []*models.Agent {
	p.mu.Lock()
	defer p.mu.Unlock()
	agents := make([]*models.Agent, 0, len(p.agents))
	for _, a := range p.agents {
		agents = append(agents, a)
	}
	return agents
}
