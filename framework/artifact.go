package framework

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	DefaultArtifactsDir = "artifacts"

	hardhatArtifactFormat = "hh-sol-artifact-1"
)

var (
	ErrArtifactNotFound  = errors.New("artifact not found")
	ErrAmbiguousArtifact = errors.New("multiple artifacts match")
	ErrNoBytecode        = errors.New("artifact has no bytecode")
	ErrArtifactFormat    = errors.New("unsupported artifact format")
)

// Artifact is a compiled contract as written by Hardhat into its artifacts directory.
type Artifact struct {
	ContractName string
	SourceName   string
	Abi          *abi.ABI
	Code         []byte
}

type hardhatArtifact struct {
	Format       string          `json:"_format"`
	ContractName string          `json:"contractName"`
	SourceName   string          `json:"sourceName"`
	Abi          json.RawMessage `json:"abi"`
	Bytecode     string          `json:"bytecode"`
}

// FullyQualifiedName returns the "source:contract" form Hardhat uses to tell
// same-named contracts apart.
func (a *Artifact) FullyQualifiedName() string {
	return a.SourceName + ":" + a.ContractName
}

func ReadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	artifact, err := ParseArtifact(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return artifact, nil
}

func ParseArtifact(data []byte) (*Artifact, error) {
	var raw hardhatArtifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if raw.Format != hardhatArtifactFormat {
		return nil, fmt.Errorf("%w %q", ErrArtifactFormat, raw.Format)
	}

	contractAbi, err := abi.JSON(bytes.NewReader(raw.Abi))
	if err != nil {
		return nil, fmt.Errorf("decode abi: %w", err)
	}

	code, err := decodeBytecode(raw.Bytecode)
	if err != nil {
		return nil, fmt.Errorf("decode bytecode: %w", err)
	}

	return &Artifact{
		ContractName: raw.ContractName,
		SourceName:   raw.SourceName,
		Abi:          &contractAbi,
		Code:         code,
	}, nil
}

func decodeBytecode(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	if strings.Contains(s, "__$") {
		return nil, errors.New("bytecode has unlinked library references")
	}
	return hexutil.Decode(s)
}

// ArtifactStore resolves contracts by name from a Hardhat artifacts directory.
type ArtifactStore struct {
	Dir string
}

func NewArtifactStore(dir string) *ArtifactStore {
	if dir == "" {
		dir = DefaultArtifactsDir
	}
	return &ArtifactStore{Dir: dir}
}

// Find looks up a deployable artifact by bare contract name or by fully
// qualified name ("contracts/Token.sol:Token").
func (s *ArtifactStore) Find(name string) (*Artifact, error) {
	var (
		artifact *Artifact
		err      error
	)
	if i := strings.LastIndex(name, ":"); i >= 0 {
		artifact, err = s.findQualified(name[:i], name[i+1:])
	} else {
		artifact, err = s.findByName(name)
	}
	if err != nil {
		return nil, err
	}
	if len(artifact.Code) == 0 {
		return nil, fmt.Errorf("%w: %s is abstract or an interface", ErrNoBytecode, artifact.FullyQualifiedName())
	}
	return artifact, nil
}

func (s *ArtifactStore) findQualified(source, contract string) (*Artifact, error) {
	path := filepath.Join(s.Dir, filepath.FromSlash(source), contract+".json")
	artifact, err := ReadArtifact(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s:%s in %s", ErrArtifactNotFound, source, contract, s.Dir)
	}
	return artifact, err
}

func (s *ArtifactStore) findByName(name string) (*Artifact, error) {
	var matches []string
	err := filepath.WalkDir(s.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "build-info" {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == name+".json" {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan artifacts: %w", err)
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s in %s", ErrArtifactNotFound, name, s.Dir)
	case 1:
		return ReadArtifact(matches[0])
	}

	names := make([]string, 0, len(matches))
	for _, path := range matches {
		artifact, err := ReadArtifact(path)
		if err != nil {
			return nil, err
		}
		names = append(names, artifact.FullyQualifiedName())
	}
	return nil, fmt.Errorf("%w %s, use one of: %s", ErrAmbiguousArtifact, name, strings.Join(names, ", "))
}
