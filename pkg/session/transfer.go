package session

// TransferRegistry maps a file-transfer id to the agent Handle that owns
// it (spec.md §4.6). Invariant I4: every id present maps to a currently
// connected agent — enforced here by CancelForHandle, called on every
// agent disconnect.
type TransferRegistry struct {
	owners map[uint32]Handle
}

// NewTransferRegistry returns an empty transfer registry.
func NewTransferRegistry() *TransferRegistry {
	return &TransferRegistry{owners: make(map[uint32]Handle)}
}

// Start records that id is now owned by h (on FILE_XFER_STATUS ==
// CAN_SEND_DATA per spec.md §4.4).
func (t *TransferRegistry) Start(id uint32, h Handle) {
	t.owners[id] = h
}

// Owner returns the handle owning id, if any.
func (t *TransferRegistry) Owner(id uint32) (Handle, bool) {
	h, ok := t.owners[id]
	return h, ok
}

// Finish removes id from the registry (transfer completed, errored, or
// was cancelled).
func (t *TransferRegistry) Finish(id uint32) {
	delete(t.owners, id)
}

// CancelForHandle removes every transfer owned by h, returning their ids
// so the caller can reply upstream with CANCELLED for each. Called when
// h's connection disconnects.
func (t *TransferRegistry) CancelForHandle(h Handle) []uint32 {
	var cancelled []uint32
	for id, owner := range t.owners {
		if owner == h {
			cancelled = append(cancelled, id)
			delete(t.owners, id)
		}
	}
	return cancelled
}
