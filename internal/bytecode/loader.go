package bytecode

import (
	"github.com/trustplatform/trustrun/internal/runtime"
	"github.com/trustplatform/trustrun/internal/value"
)

// Loader adapts Decode+ToRuntimeConfig to scheduler.BytecodeLoader's
// Load([]byte) (runtime.Config, error) contract, so a Runner can accept
// ReloadBytecode commands without importing internal/bytecode directly.
type Loader struct {
	Profile value.Profile
}

func NewLoader(profile value.Profile) *Loader {
	return &Loader{Profile: profile}
}

func (l *Loader) Load(data []byte) (runtime.Config, error) {
	mod, err := Decode(data)
	if err != nil {
		return runtime.Config{}, err
	}
	return mod.ToRuntimeConfig(l.Profile)
}
