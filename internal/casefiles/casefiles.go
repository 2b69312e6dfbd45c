// Package casefiles removes a case's working directory once its ticket is approved.
package casefiles

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"go.uber.org/zap"
)

var validCaseID = regexp.MustCompile(`^[0-9]+$`)

var ErrInvalidCaseID = errors.New("casefiles: case id must be digits only")

type Cleaner struct {
	root string
	log  *zap.Logger
}

func NewCleaner(root string, log *zap.Logger) *Cleaner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cleaner{root: root, log: log}
}

// Cleanup deletes <root>/<caseID>. It reports false without error when the
// directory does not exist.
func (c *Cleaner) Cleanup(caseID, ticketID string) (bool, error) {
	if c.root == "" {
		return false, errors.New("casefiles: case root not configured")
	}
	if !validCaseID.MatchString(caseID) {
		return false, fmt.Errorf("%w: %q", ErrInvalidCaseID, caseID)
	}

	target := filepath.Join(c.root, caseID)
	info, err := os.Stat(target)
	if errors.Is(err, fs.ErrNotExist) {
		c.log.Info("case directory not found", zap.String("caseid", caseID), zap.String("ticket_id", ticketID), zap.String("path", target))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("inspecting %s: %w", target, err)
	}
	if !info.IsDir() {
		return false, fmt.Errorf("%s is not a directory", target)
	}

	if err := os.RemoveAll(target); err != nil {
		return false, fmt.Errorf("removing %s: %w", target, err)
	}
	c.log.Info("case directory removed", zap.String("caseid", caseID), zap.String("ticket_id", ticketID), zap.String("path", target))
	return true, nil
}
