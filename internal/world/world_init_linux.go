//go:build linux

package world

import "log"

func (w *World) initializeCompute(force, async bool) {
	// Disabled on Linux by default due to EGL/WebGPU conflicts with NVIDIA on X11
	if !force {
		log.Println("Compute: disabled on Linux (EGL conflict workaround), pass -gpu to force")
		return
	}
	w.startCompute(async)
}
