package process

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/mkarlsen/devbay/internal/errors"
	"github.com/mkarlsen/devbay/internal/tools"
)

// ServerOptions configures the managed backend server.
type ServerOptions struct {
	// Port the server listens on, passed via the PORT env var
	Port uint16
	// Dir is the project directory
	Dir string
	// Script is the entry point run under node in production mode
	Script string
	// DBPath is handed to the server via DB_PATH when set
	DBPath string
	// DevMode runs `npm run dev` instead of the node script
	DevMode bool
}

// StartServer launches the backend server into the server slot. Dev
// mode delegates to the project's npm dev script; otherwise the entry
// script runs under node directly.
func (s *Supervisor) StartServer(opts ServerOptions) (*Handle, error) {
	if opts.Port == 0 {
		return nil, &errors.ProcessError{
			Code:    errors.CodeValidation,
			Message: "server port must be set",
			Kind:    string(KindServer),
		}
	}

	var cmd *exec.Cmd
	if opts.DevMode {
		npm, err := tools.Find("npm")
		if err != nil {
			return nil, err
		}
		cmd = exec.Command(npm, "run", "dev")
	} else {
		if opts.Script == "" {
			return nil, &errors.ProcessError{
				Code:    errors.CodeValidation,
				Message: "server script must be set outside dev mode",
				Kind:    string(KindServer),
			}
		}
		node, err := tools.Find("node")
		if err != nil {
			return nil, err
		}
		cmd = exec.Command(node, opts.Script)
	}

	cmd.Dir = opts.Dir
	cmd.Env = append(os.Environ(), fmt.Sprintf("PORT=%d", opts.Port))
	if opts.DBPath != "" {
		cmd.Env = append(cmd.Env, "DB_PATH="+opts.DBPath)
	}

	return s.Start(KindServer, cmd)
}
