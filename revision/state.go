package revision

// State 编辑事务所处阶段
type State int

const (
	StateValidating State = iota
	StateMutating
	StateDiffing
	StateNoVersion
	StateVersioning
	StateAuditing
	StateCommitted
	StateAborted
)

var stateNames = [...]string{
	StateValidating: "validating",
	StateMutating:   "mutating",
	StateDiffing:    "diffing",
	StateNoVersion:  "no_version",
	StateVersioning: "versioning",
	StateAuditing:   "auditing",
	StateCommitted:  "committed",
	StateAborted:    "aborted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal 是否为终止状态
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateAborted
}
