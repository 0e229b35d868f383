package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/automat/internal/compiler"
)

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeScanError     = "E002" // Directory scan error
	ErrCodeNoFiles       = "E003" // No CUE files found
	ErrCodeLoadFailed    = "E004" // CUE load failed
	ErrCodeNotFound      = "E005" // Path not found
	ErrCodeBuildFailed   = "E006" // CUE build failed
	ErrCodeCompileFailed = "E007" // Policy compilation failed
	ErrCodeStoreFailed   = "E008" // Database error
)

// LoadError represents an error that occurred during policy loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadResult holds a parsed policy directory before graph assembly.
type LoadResult struct {
	Specs     []compiler.AssetSpec
	FileCount int
}

// LoadPolicy loads and parses the CUE policy files in a directory.
// Parse errors fail fast; schema validation is the caller's step so
// the validate command can collect everything at once.
func LoadPolicy(dir string) (*LoadResult, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("policy directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing policy directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	specs, err := compiler.CompileSource(value)
	if err != nil {
		return nil, convertCompileError(err)
	}

	return &LoadResult{Specs: specs, FileCount: len(cueFiles)}, nil
}

// LoadBundle loads a policy directory all the way to an executable
// bundle, failing on the first validation error.
func LoadBundle(dir string) (*compiler.Bundle, error) {
	result, err := LoadPolicy(dir)
	if err != nil {
		return nil, err
	}
	bundle, err := compiler.Build(result.Specs)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeCompileFailed, Message: err.Error()}
	}
	return bundle, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError preserves position info from compiler errors.
func convertCompileError(err error) *LoadError {
	if compileErr, ok := err.(*compiler.CompileError); ok {
		return &LoadError{
			Code:    ErrCodeCompileFailed,
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeCompileFailed, Message: err.Error()}
}
