// Package replaypb defines the wire messages and gRPC service descriptor of
// the replay.v1.Replay service. Messages travel as JSON through the codec in
// this package.
package replaypb

// Transition is the wire form of a stored transition
type Transition struct {
	Id         string            `json:"id,omitempty"`
	EnvId      string            `json:"env_id,omitempty"`
	EpisodeId  string            `json:"episode_id,omitempty"`
	StepNumber uint32            `json:"step_number,omitempty"`
	State      []byte            `json:"state,omitempty"`
	Action     []byte            `json:"action,omitempty"`
	NextState  []byte            `json:"next_state,omitempty"`
	Reward     float32           `json:"reward,omitempty"`
	Done       bool              `json:"done,omitempty"`
	Timestamp  uint64            `json:"timestamp,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type StoreTransitionRequest struct {
	Transition *Transition `json:"transition"`
}

type StoreTransitionResponse struct {
	TransitionId string `json:"transition_id"`
}

type StoreBatchRequest struct {
	Transitions []*Transition `json:"transitions"`
}

type StoreBatchResponse struct {
	TransitionIds []string `json:"transition_ids"`
	StoredCount   uint32   `json:"stored_count"`
	FailedCount   uint32   `json:"failed_count"`
	ErrorMessages []string `json:"error_messages,omitempty"`
}

type SampleRequest struct {
	BatchSize uint32 `json:"batch_size"`
}

// SampleResponse carries a prioritized batch. TreeIndices must be sent back
// unchanged in UpdatePrioritiesRequest.
type SampleResponse struct {
	Transitions []*Transition `json:"transitions"`
	TreeIndices []int64       `json:"tree_indices"`
	Priorities  []float64     `json:"priorities"`
	Weights     []float64     `json:"weights"`
	Beta        float64       `json:"beta"`
}

type UpdatePrioritiesRequest struct {
	TreeIndices []int64   `json:"tree_indices"`
	AbsErrors   []float64 `json:"abs_errors"`
}

type UpdatePrioritiesResponse struct {
	UpdatedCount uint32 `json:"updated_count"`
}

type GetStatsRequest struct {
	EnvId string `json:"env_id,omitempty"`
}

type StatsResponse struct {
	Capacity         uint64            `json:"capacity"`
	Size             uint64            `json:"size"`
	TotalStored      uint64            `json:"total_stored"`
	Evicted          uint64            `json:"evicted"`
	TotalPriority    float64           `json:"total_priority"`
	MaxPriority      float64           `json:"max_priority"`
	MinPriority      float64           `json:"min_priority"`
	Beta             float64           `json:"beta"`
	TransitionsByEnv map[string]uint64 `json:"transitions_by_env"`
	OldestTimestamp  uint64            `json:"oldest_timestamp,omitempty"`
	NewestTimestamp  uint64            `json:"newest_timestamp,omitempty"`
	StorageBytes     uint64            `json:"storage_bytes"`
}
