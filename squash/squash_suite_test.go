// Package squash implements the bounded squash queue from spec §4.3.
package squash_test

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestSquash(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, t.Name())
}
