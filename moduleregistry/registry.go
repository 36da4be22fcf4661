// Package moduleregistry wires the built-in pipeline modules into a
// registry. New modules are added here, in one place.
package moduleregistry

import (
	"github.com/oneshot2001/axion/module"
	"github.com/oneshot2001/axion/modules/detection"
	"github.com/oneshot2001/axion/modules/framepub"
	"github.com/oneshot2001/axion/modules/motion"
	"github.com/oneshot2001/axion/modules/plates"
)

// Default returns a registry holding all built-in modules.
func Default() *module.Registry {
	reg := module.NewRegistry()
	reg.MustRegister(detection.Name, detection.New)
	reg.MustRegister(motion.Name, motion.New)
	reg.MustRegister(plates.Name, plates.New)
	reg.MustRegister(framepub.Name, framepub.New)
	return reg
}
