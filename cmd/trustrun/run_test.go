package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustplatform/trustrun/internal/bytecode"
	"github.com/trustplatform/trustrun/internal/eval"
	"github.com/trustplatform/trustrun/internal/runtime"
	"github.com/trustplatform/trustrun/internal/trustconfig"
	"github.com/trustplatform/trustrun/internal/value"
)

func TestOpenRetainStoreDisabledByDefault(t *testing.T) {
	store, err := openRetainStore(trustconfig.RuntimeConfig{})
	assert.NoError(t, err)
	assert.Nil(t, store)
}

func TestOpenRetainStoreRejectsUnknownKind(t *testing.T) {
	_, err := openRetainStore(trustconfig.RuntimeConfig{RetainStore: "xml"})
	assert.Error(t, err)
}

func TestOpenRetainStoreFile(t *testing.T) {
	store, err := openRetainStore(trustconfig.RuntimeConfig{RetainStore: "file", RetainPath: t.TempDir() + "/retain.json"})
	require.NoError(t, err)
	assert.NotNil(t, store)
}

func TestBuildTasksDerivesSingleTaskForLoadedPrograms(t *testing.T) {
	reg := value.NewTypeRegistry()
	reg.Seal()
	prog := eval.NewProgram()
	prog.Programs["main"] = &eval.ProgramDef{Name: "main"}

	rt, err := runtime.New(runtime.Config{
		Registry: reg,
		Program:  prog,
		Profile:  value.DefaultProfile(),
	})
	require.NoError(t, err)

	mod := &bytecode.BytecodeModule{
		Pous: []bytecode.PouEntry{{Kind: bytecode.PouProgram, Name: "main"}},
	}

	tasks, err := buildTasks(rt, mod, 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "main", tasks[0].Name)
	assert.Equal(t, 10*time.Millisecond, tasks[0].Interval)
	assert.Len(t, tasks[0].Programs, 1)
}

func TestBuildTasksSkipsUnknownPous(t *testing.T) {
	reg := value.NewTypeRegistry()
	reg.Seal()
	rt, err := runtime.New(runtime.Config{
		Registry: reg,
		Program:  eval.NewProgram(),
		Profile:  value.DefaultProfile(),
	})
	require.NoError(t, err)

	mod := &bytecode.BytecodeModule{
		Pous: []bytecode.PouEntry{{Kind: bytecode.PouFunction, Name: "f"}},
	}

	tasks, err := buildTasks(rt, mod, time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, tasks)
}
