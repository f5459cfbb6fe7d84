package deployer

import (
	"encoding/json"
	"fmt"
	"os"
)

type Report struct {
	Contract    string `json:"contract"`
	Address     string `json:"address"`
	TxHash      string `json:"tx_hash"`
	ChainID     uint64 `json:"chain_id,omitempty"`
	ExplorerURL string `json:"explorer_url"`
}

func NewReport(res *Result, chainID uint64) Report {
	return Report{
		Contract:    ContractName,
		Address:     res.Address.Hex(),
		TxHash:      res.TxHash.Hex(),
		ChainID:     chainID,
		ExplorerURL: res.URL,
	}
}

func WriteReport(path string, report Report) error {
	blob, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(blob, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
