// Package domain defines the data model, sentinel errors and contracts shared
// across ciphermesh. It contains plain types (wire/state) and interfaces only.
//
// Types live in the types subpackage and interfaces in the interfaces
// subpackage; this package re-exports both through aliases.
package domain
