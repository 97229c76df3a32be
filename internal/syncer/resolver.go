package syncer

import "docsync/internal/models"

// Resolve decides how to reconcile the cached document with the remote one
// using last-write-wins on last_updated_at. A nil document is absent. Equal
// timestamps are a no-op; field contents never break a tie.
func Resolve(local, remote models.SyncDocument) string {
	switch {
	case local == nil && remote == nil:
		return models.DecisionNoop
	case remote == nil:
		return models.DecisionPropagateLocal
	case local == nil:
		return models.DecisionAdoptRemote
	}

	localTS, remoteTS := local.Timestamp(), remote.Timestamp()
	switch {
	case remoteTS > localTS:
		return models.DecisionAdoptRemote
	case localTS > remoteTS:
		return models.DecisionPropagateLocal
	default:
		return models.DecisionNoop
	}
}
