// SPDX-License-Identifier: MPL-2.0

package scanner

import (
	"context"
	"fmt"

	"github.com/invowk/modhost/internal/scriptrt"
	"github.com/invowk/modhost/pkg/modbundle"
)

// Environment keys exported to addin Init scripts.
const (
	EnvHostName   = "MODHOST_HOST_NAME"
	EnvBaseDir    = "MODHOST_BASE_DIR"
	EnvModulePath = "MODHOST_MODULE_PATH"
	EnvAddinType  = "MODHOST_ADDIN_TYPE"
)

type (
	// HostContext is handed to every addin's Init. One value is shared by all
	// addins of a host; it is read-only once the scanner is built.
	HostContext struct {
		HostName   string
		BaseDir    string
		ModulePath string
	}

	// Addin is an initialized addin instance.
	Addin interface {
		Init(ctx context.Context, host *HostContext) error
	}

	// AddinSpec is what a factory needs to build an addin.
	AddinSpec struct {
		Type *modbundle.Type
		// Init is the resolved Init method, possibly inherited.
		Init   *modbundle.Method
		Engine scriptrt.Engine
	}

	// AddinFactory constructs the addin for one type.
	AddinFactory func(ctx context.Context, spec AddinSpec) (Addin, error)

	scriptAddin struct {
		spec AddinSpec
	}
)

// Environ returns the host context as environment entries.
func (h *HostContext) Environ() map[string]string {
	if h == nil {
		return map[string]string{}
	}
	return map[string]string{
		EnvHostName:   h.HostName,
		EnvBaseDir:    h.BaseDir,
		EnvModulePath: h.ModulePath,
	}
}

// ScriptAddinFactory builds addins whose Init runs the type's constructor
// and Init script in one session.
func ScriptAddinFactory(_ context.Context, spec AddinSpec) (Addin, error) {
	if spec.Engine == nil {
		return nil, fmt.Errorf("no engine for runtime %q", spec.Type.Runtime)
	}
	if spec.Init == nil || spec.Init.Static {
		return nil, fmt.Errorf("type %s has no instance %s method", spec.Type.Name, modbundle.MethodInit)
	}
	return &scriptAddin{spec: spec}, nil
}

func (a *scriptAddin) Init(ctx context.Context, host *HostContext) (err error) {
	env := host.Environ()
	env[EnvAddinType] = a.spec.Type.Name

	sess, err := a.spec.Engine.NewSession(ctx, scriptrt.Request{Env: env})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := sess.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if a.spec.Type.Constructor != "" {
		if err := sess.Run(ctx, a.spec.Type.Name+".ctor", a.spec.Type.Constructor); err != nil {
			return err
		}
	}
	return sess.Run(ctx, a.spec.Type.Name+"."+modbundle.MethodInit, a.spec.Init.Script)
}
