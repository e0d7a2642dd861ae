package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cartridge/prioreplay/internal/metrics"
	"github.com/cartridge/prioreplay/internal/per"
	"github.com/cartridge/prioreplay/internal/replaypb"
	"github.com/cartridge/prioreplay/internal/storage"
	"github.com/cartridge/prioreplay/internal/sumtree"
)

// ReplayService implements the Replay gRPC service
type ReplayService struct {
	replaypb.UnimplementedReplayServer
	backend storage.Backend
	metrics *metrics.Collector
	logger  zerolog.Logger
}

// NewReplayService creates a new ReplayService
func NewReplayService(backend storage.Backend, collector *metrics.Collector, logger zerolog.Logger) *ReplayService {
	return &ReplayService{
		backend: backend,
		metrics: collector,
		logger:  logger.With().Str("component", "service").Logger(),
	}
}

// StoreTransition stores a single transition
func (s *ReplayService) StoreTransition(ctx context.Context, req *replaypb.StoreTransitionRequest) (*replaypb.StoreTransitionResponse, error) {
	if req.Transition == nil {
		return nil, s.fail("StoreTransition", status.Error(codes.InvalidArgument, "transition is required"))
	}

	// Convert wire transition to storage transition
	transition := wireToStorageTransition(req.Transition)

	if err := s.backend.Store(ctx, transition); err != nil {
		return nil, s.fail("StoreTransition", toStatus(err))
	}

	return &replaypb.StoreTransitionResponse{
		TransitionId: transition.ID,
	}, nil
}

// StoreBatch stores multiple transitions in a batch
func (s *ReplayService) StoreBatch(ctx context.Context, req *replaypb.StoreBatchRequest) (*replaypb.StoreBatchResponse, error) {
	if len(req.Transitions) == 0 {
		return &replaypb.StoreBatchResponse{}, nil
	}

	transitions := make([]*storage.Transition, len(req.Transitions))
	for i, wire := range req.Transitions {
		if wire == nil {
			return nil, s.fail("StoreBatch", status.Errorf(codes.InvalidArgument, "transition %d is nil", i))
		}
		transitions[i] = wireToStorageTransition(wire)
	}

	ids, err := s.backend.StoreBatch(ctx, transitions)
	if err != nil {
		if errors.Is(err, storage.ErrClosed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, s.fail("StoreBatch", toStatus(err))
		}
		s.metrics.RequestFailed("StoreBatch")
		return &replaypb.StoreBatchResponse{
			TransitionIds: ids,
			StoredCount:   uint32(len(ids)),
			FailedCount:   uint32(len(req.Transitions) - len(ids)),
			ErrorMessages: []string{err.Error()},
		}, nil
	}

	return &replaypb.StoreBatchResponse{
		TransitionIds: ids,
		StoredCount:   uint32(len(ids)),
	}, nil
}

// Sample draws a prioritized batch for training
func (s *ReplayService) Sample(ctx context.Context, req *replaypb.SampleRequest) (*replaypb.SampleResponse, error) {
	if req.BatchSize == 0 {
		return nil, s.fail("Sample", status.Error(codes.InvalidArgument, "batch_size must be positive"))
	}

	result, err := s.backend.Sample(ctx, int(req.BatchSize))
	if err != nil {
		return nil, s.fail("Sample", toStatus(err))
	}

	resp := &replaypb.SampleResponse{
		Transitions: make([]*replaypb.Transition, len(result.Transitions)),
		TreeIndices: make([]int64, len(result.TreeIndices)),
		Priorities:  result.Priorities,
		Weights:     result.Weights,
		Beta:        result.Beta,
	}
	for i, transition := range result.Transitions {
		resp.Transitions[i] = storageToWireTransition(transition)
		resp.TreeIndices[i] = int64(result.TreeIndices[i])
	}

	return resp, nil
}

// UpdatePriorities feeds observed errors back into sampling priorities
func (s *ReplayService) UpdatePriorities(ctx context.Context, req *replaypb.UpdatePrioritiesRequest) (*replaypb.UpdatePrioritiesResponse, error) {
	if len(req.TreeIndices) != len(req.AbsErrors) {
		return nil, s.fail("UpdatePriorities", status.Error(codes.InvalidArgument, "tree indices and errors must have same length"))
	}

	indices := make([]int, len(req.TreeIndices))
	for i, idx := range req.TreeIndices {
		indices[i] = int(idx)
	}

	if err := s.backend.UpdatePriorities(ctx, indices, req.AbsErrors); err != nil {
		return nil, s.fail("UpdatePriorities", toStatus(err))
	}

	return &replaypb.UpdatePrioritiesResponse{
		UpdatedCount: uint32(len(indices)),
	}, nil
}

// GetStats returns replay buffer statistics
func (s *ReplayService) GetStats(ctx context.Context, req *replaypb.GetStatsRequest) (*replaypb.StatsResponse, error) {
	stats, err := s.backend.GetStats(ctx, req.EnvId)
	if err != nil {
		return nil, s.fail("GetStats", toStatus(err))
	}

	response := &replaypb.StatsResponse{
		Capacity:         stats.Capacity,
		Size:             stats.Size,
		TotalStored:      stats.TotalStored,
		Evicted:          stats.Evicted,
		TotalPriority:    stats.TotalPriority,
		MaxPriority:      stats.MaxPriority,
		MinPriority:      stats.MinPriority,
		Beta:             stats.Beta,
		TransitionsByEnv: stats.TransitionsByEnv,
		StorageBytes:     stats.StorageBytes,
	}

	if stats.OldestTimestamp != nil {
		response.OldestTimestamp = uint64(stats.OldestTimestamp.Unix())
	}
	if stats.NewestTimestamp != nil {
		response.NewestTimestamp = uint64(stats.NewestTimestamp.Unix())
	}

	return response, nil
}

func (s *ReplayService) fail(method string, err error) error {
	s.metrics.RequestFailed(method)
	s.logger.Debug().Err(err).Str("method", method).Msg("request rejected")
	return err
}

// toStatus maps backend errors onto gRPC codes
func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, per.ErrInvalidBatchSize),
		errors.Is(err, per.ErrLengthMismatch),
		errors.Is(err, per.ErrInvalidPriority),
		errors.Is(err, sumtree.ErrIndexOutOfRange):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, per.ErrEmpty):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, storage.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// Conversion functions

func wireToStorageTransition(wire *replaypb.Transition) *storage.Transition {
	transition := &storage.Transition{
		ID:         wire.Id,
		EnvID:      wire.EnvId,
		EpisodeID:  wire.EpisodeId,
		StepNumber: wire.StepNumber,
		State:      wire.State,
		Action:     wire.Action,
		NextState:  wire.NextState,
		Reward:     wire.Reward,
		Done:       wire.Done,
		Metadata:   wire.Metadata,
	}

	if wire.Timestamp > 0 {
		transition.Timestamp = time.Unix(int64(wire.Timestamp), 0)
	}

	return transition
}

func storageToWireTransition(t *storage.Transition) *replaypb.Transition {
	return &replaypb.Transition{
		Id:         t.ID,
		EnvId:      t.EnvID,
		EpisodeId:  t.EpisodeID,
		StepNumber: t.StepNumber,
		State:      t.State,
		Action:     t.Action,
		NextState:  t.NextState,
		Reward:     t.Reward,
		Done:       t.Done,
		Timestamp:  uint64(t.Timestamp.Unix()),
		Metadata:   t.Metadata,
	}
}
