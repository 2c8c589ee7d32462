//go:build !linux && !darwin

package world

func (w *World) initializeCompute(_, async bool) {
	w.startCompute(async)
}
