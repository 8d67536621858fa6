package models

import "fmt"

type OwnerType string

const (
	OwnerStudent OwnerType = "student"
	OwnerAcademy OwnerType = "academy"
	OwnerSystem  OwnerType = "system"
)

func (t OwnerType) Valid() bool {
	switch t {
	case OwnerStudent, OwnerAcademy, OwnerSystem:
		return true
	}
	return false
}

// Owner identifies the holder of a wallet or bank account.
// The platform itself is represented by OwnerSystem with ID 0.
type Owner struct {
	Type OwnerType `json:"type"`
	ID   uint      `json:"id"`
}

func SystemOwner() Owner {
	return Owner{Type: OwnerSystem}
}

func StudentOwner(id uint) Owner {
	return Owner{Type: OwnerStudent, ID: id}
}

func AcademyOwner(id uint) Owner {
	return Owner{Type: OwnerAcademy, ID: id}
}

func (o Owner) Valid() bool {
	if !o.Type.Valid() {
		return false
	}
	if o.Type == OwnerSystem {
		return o.ID == 0
	}
	return o.ID != 0
}

func (o Owner) String() string {
	return fmt.Sprintf("%s:%d", o.Type, o.ID)
}
