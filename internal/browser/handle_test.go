package browser

import "testing"

func TestHandleConnectedNilSafe(t *testing.T) {
	var h *Handle
	if h.Connected() {
		t.Error("nil handle must report disconnected")
	}
	if err := h.Close(); err != nil {
		t.Errorf("closing a nil handle: %v", err)
	}
}

func TestHandleConnectedFlag(t *testing.T) {
	h := &Handle{}
	if h.Connected() {
		t.Error("zero handle must report disconnected")
	}
	h.connected.Store(true)
	if !h.Connected() {
		t.Error("connected flag not reflected")
	}
}
