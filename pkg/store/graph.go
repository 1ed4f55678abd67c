package store

import (
	"context"

	"framesync/pkg/logger"
	"framesync/pkg/store/keys"
)

// The share graph records user -> asset edges so downstream consumers can
// answer "which assets does this user see" without scanning descriptors.
// On partial delete failure the graph is reset wholesale and rebuilt
// lazily: a lost cache beats a corrupt one.

// AddGraphEdges records user->asset visibility edges in one batch.
func (s *Store) AddGraphEdges(ctx context.Context, userID string, assetGlobalIDs []string) error {
	puts := make(map[string]any, len(assetGlobalIDs))
	for _, gid := range assetGlobalIDs {
		puts[keys.GenGraphEdgeKey(userID, gid)] = struct{}{}
	}
	return s.applyBatch(puts, nil)
}

// GraphAssetsForUser lists the asset global ids the user has edges to.
func (s *Store) GraphAssetsForUser(ctx context.Context, userID string) ([]string, error) {
	var out []string
	err := s.scanPrefix(ctx, keys.GraphUserPrefix(userID), func(key string, _ []byte) error {
		if _, gid, perr := keys.ParseGraphEdgeKey(key); perr == nil {
			out = append(out, gid)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RemoveUsersFromGraph deletes every edge belonging to the given users.
func (s *Store) RemoveUsersFromGraph(ctx context.Context, userIDs []string) error {
	for _, uid := range userIDs {
		if _, err := s.deletePrefix(ctx, keys.GraphUserPrefix(uid)); err != nil {
			return err
		}
	}
	return nil
}

// ResetGraph drops the entire share graph. Fallback for partial removal
// failures; the graph is rebuilt lazily by later passes.
func (s *Store) ResetGraph(ctx context.Context) error {
	removed, err := s.deletePrefix(ctx, keys.GraphPrefix)
	if err != nil {
		return err
	}
	logger.Warn("share_graph_reset", "edges_dropped", len(removed))
	return nil
}
