//go:build darwin

package world

func (w *World) initializeCompute(_, async bool) {
	// Metal on Mac works fine
	w.startCompute(async)
}
