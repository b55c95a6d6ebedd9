package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/canal-compras/disputa/internal/api/http"
	"github.com/canal-compras/disputa/internal/config"
)

// joinCluster asks the node at the join endpoint to add this node as a voter.
// Followers answer 409 while no leader is known, so every failure is retried.
func joinCluster(ctx context.Context, cfg *config.Config) error {
	endpoint := strings.TrimRight(cfg.Cluster.JoinEndpoint, "/") + "/v1/cluster/join"
	body, err := json.Marshal(map[string]string{
		"node_id":   cfg.NodeID,
		"raft_addr": cfg.Cluster.RaftAddr,
	})
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	var lastErr error
	for i := 0; i < cfg.Cluster.JoinRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cfg.Cluster.JoinRetryDelay):
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(httpapi.ClusterTokenHeader, cfg.Cluster.JoinToken)
		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		_ = resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return errors.New("join rejected: invalid cluster token")
		}
		lastErr = fmt.Errorf("join returned status %d", resp.StatusCode)
	}
	if lastErr == nil {
		lastErr = errors.New("join failed")
	}
	return lastErr
}
