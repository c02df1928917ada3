// Package images stores data URI images in the document store under
// images/{uid}/{folder}/{id}.
package images

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/woundcare/woundcare/internal/platform/docstore"
	"github.com/woundcare/woundcare/internal/platform/genai"
)

const (
	Root = "images"
	// DefaultFolder holds profile pictures.
	DefaultFolder = "profile-pictures"
	// MaxImageSize bounds the decoded image payload.
	MaxImageSize = 5 * 1024 * 1024
)

var (
	ErrNotFound         = errors.New("image not found")
	ErrMissingFileName  = errors.New("fileName is required")
	ErrImageTooLarge    = errors.New("image exceeds maximum allowed size")
	ErrUnsupportedImage = errors.New("only image content types are allowed")
	ErrInvalidFolder    = errors.New("folder must be a single path segment")
)

// Metadata describes a stored image.
type Metadata struct {
	FileName  string `json:"fileName"`
	MimeType  string `json:"mimeType"`
	CreatedAt string `json:"createdAt"`
}

// Image is a stored image with its payload.
type Image struct {
	ID       string   `json:"id"`
	Folder   string   `json:"folder"`
	DataURI  string   `json:"dataUri"`
	Metadata Metadata `json:"metadata"`
}

// Store saves and reads images as a principal, so the store's access rules
// keep each user's images private.
type Store struct {
	client *docstore.Client
	now    func() time.Time
}

func NewStore(client *docstore.Client) *Store {
	return &Store{client: client, now: time.Now}
}

func folderPath(uid, folder string) (string, error) {
	if folder == "" {
		folder = DefaultFolder
	}
	if strings.Contains(folder, "/") {
		return "", ErrInvalidFolder
	}
	return docstore.Join(Root, uid, folder), nil
}

// Save validates dataURI and stores it with its metadata, returning the new
// image id.
func (s *Store) Save(ctx context.Context, uid, folder, dataURI, fileName string) (*Image, error) {
	if strings.TrimSpace(fileName) == "" {
		return nil, ErrMissingFileName
	}
	media, err := genai.ParseDataURI(dataURI)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(media.MimeType, "image/") {
		return nil, ErrUnsupportedImage
	}
	if base64.StdEncoding.DecodedLen(len(media.Data)) > MaxImageSize {
		return nil, ErrImageTooLarge
	}
	coll, err := folderPath(uid, folder)
	if err != nil {
		return nil, err
	}

	img := &Image{
		Folder:  folder,
		DataURI: media.URI(),
		Metadata: Metadata{
			FileName:  fileName,
			MimeType:  media.MimeType,
			CreatedAt: s.now().UTC().Format(time.RFC3339Nano),
		},
	}
	if img.Folder == "" {
		img.Folder = DefaultFolder
	}
	id, err := s.client.As(docstore.Actor{UID: uid}).Add(ctx, coll, map[string]any{
		"dataUri": img.DataURI,
		"metadata": map[string]any{
			"fileName":  img.Metadata.FileName,
			"mimeType":  img.Metadata.MimeType,
			"createdAt": img.Metadata.CreatedAt,
		},
	})
	if err != nil {
		return nil, err
	}
	img.ID = id
	return img, nil
}

// Get reads one image of uid.
func (s *Store) Get(ctx context.Context, uid, folder, id string) (*Image, error) {
	coll, err := folderPath(uid, folder)
	if err != nil {
		return nil, err
	}
	snap, err := s.client.As(docstore.Actor{UID: uid}).Get(ctx, docstore.Join(coll, id))
	if err != nil {
		return nil, err
	}
	if !snap.Exists {
		return nil, ErrNotFound
	}
	return fromSnapshot(snap)
}

// List returns the images of uid in folder, newest first, without payloads.
func (s *Store) List(ctx context.Context, uid, folder string) ([]Image, error) {
	coll, err := folderPath(uid, folder)
	if err != nil {
		return nil, err
	}
	snaps, err := s.client.As(docstore.Actor{UID: uid}).Query(ctx, docstore.Query{
		Collection:  coll,
		Constraints: []docstore.Constraint{docstore.OrderBy("metadata.createdAt", docstore.Desc)},
	})
	if err != nil {
		return nil, err
	}
	out := make([]Image, 0, len(snaps))
	for _, snap := range snaps {
		img, err := fromSnapshot(snap)
		if err != nil {
			continue
		}
		img.DataURI = ""
		out = append(out, *img)
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, uid, folder, id string) error {
	coll, err := folderPath(uid, folder)
	if err != nil {
		return err
	}
	return s.client.As(docstore.Actor{UID: uid}).Delete(ctx, docstore.Join(coll, id))
}

func fromSnapshot(snap *docstore.Snapshot) (*Image, error) {
	uri, _ := snap.Data["dataUri"].(string)
	meta, _ := snap.Data["metadata"].(map[string]any)
	if uri == "" || meta == nil {
		return nil, fmt.Errorf("%w: %s is not an image", ErrNotFound, snap.Path)
	}
	segs, _ := docstore.Segments(snap.Path)
	img := &Image{ID: snap.ID, DataURI: uri}
	if len(segs) == 4 {
		img.Folder = segs[2]
	}
	img.Metadata.FileName, _ = meta["fileName"].(string)
	img.Metadata.MimeType, _ = meta["mimeType"].(string)
	img.Metadata.CreatedAt, _ = meta["createdAt"].(string)
	return img, nil
}
