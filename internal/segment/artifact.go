package segment

import (
	"github.com/maauso/audiosplit/internal/blob"
)

// Artifact is one produced segment, held in memory behind a playable reference.
type Artifact struct {
	// Name is the segment file name, e.g. output_000.mp3.
	Name string `json:"name"`
	// Index is the ordinal parsed from Name.
	Index int `json:"index"`
	// Ref is the playable reference to the segment bytes.
	Ref string `json:"ref"`
	// ContentType is inherited from the source file.
	ContentType string `json:"content_type"`
	// Size is the segment length in bytes.
	Size int64 `json:"size"`

	store *blob.Store
}

// NewArtifact stores data in store and returns the artifact referring to it.
func NewArtifact(store *blob.Store, name string, index int, data []byte, contentType string) Artifact {
	return Artifact{
		Name:        name,
		Index:       index,
		Ref:         store.Create(data, contentType),
		ContentType: contentType,
		Size:        int64(len(data)),
		store:       store,
	}
}

// Bytes returns the segment contents through its reference.
// It fails with blob.ErrNotFound once the artifact has been released.
func (a Artifact) Bytes() ([]byte, error) {
	if a.store == nil {
		return nil, blob.ErrNotFound
	}
	b, err := a.store.Open(a.Ref)
	if err != nil {
		return nil, err
	}
	return b.Data, nil
}

// Release revokes the playable reference. Releasing twice is harmless.
func (a Artifact) Release() {
	if a.store != nil {
		a.store.Revoke(a.Ref)
	}
}

func releaseAll(artifacts []Artifact) {
	for _, a := range artifacts {
		a.Release()
	}
}
