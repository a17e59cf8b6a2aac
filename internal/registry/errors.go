// SPDX-License-Identifier: MIT

package registry

import "fmt"

func notFoundErr(kind Kind, name string) error {
	return fmt.Errorf("registry: no %s factory named %q", kind, name)
}

func rejectedErr(kind Kind, name string) error {
	return fmt.Errorf("registry: %s factory %q rejected the given parameters", kind, name)
}

func constructNilErr(kind Kind, name string) error {
	return fmt.Errorf("registry: %s factory %q constructed a nil stage", kind, name)
}
