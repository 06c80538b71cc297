package app

import (
	"context"
	"log/slog"

	"pointy/cmd/internal/keystore"
	"pointy/cmd/internal/pointing"
)

// recordFacilitatorKeys stores the key of every facilitated session seen on updates so
// the session can be resumed later. It returns when ctx is done or updates is closed.
func recordFacilitatorKeys(ctx context.Context, log *slog.Logger, updates <-chan pointing.Session, keys keystore.Store) {
	seen := make(map[string]string)
	for {
		select {
		case <-ctx.Done():
			return
		case sess, ok := <-updates:
			if !ok {
				return
			}
			if !sess.IsFacilitator || sess.FacilitatorSessionKey == "" {
				continue
			}
			if seen[sess.SessionID] == sess.FacilitatorSessionKey {
				continue
			}
			err := keys.Put(ctx, keystore.Entry{
				SessionID:      sess.SessionID,
				FacilitatorKey: sess.FacilitatorSessionKey,
			})
			if err != nil {
				log.Info("keystore.put.fail", "session_id", sess.SessionID, "err", err)
				continue
			}
			seen[sess.SessionID] = sess.FacilitatorSessionKey
			log.Debug("keystore.put", "session_id", sess.SessionID)
		}
	}
}
