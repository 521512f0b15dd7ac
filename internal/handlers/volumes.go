package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"cloudmock/internal/core"
	"cloudmock/internal/events"
	"cloudmock/internal/response"
	"cloudmock/internal/router"
	"cloudmock/pkg/domain"
)

const (
	minVolumeSize     = 10
	maxVolumeSize     = 16384
	defaultVolumeSize = 20
)

type volumeCreateInput struct {
	Label    string   `json:"label"`
	Region   string   `json:"region"`
	Size     *int     `json:"size"`
	LinodeID *int     `json:"linode_id"`
	ConfigID *int     `json:"config_id"`
	Tags     []string `json:"tags"`
}

func (in volumeCreateInput) Validate() error {
	v := &domain.ValidationError{}
	checkLabel(v, "label", in.Label, 1, 32)
	if in.Region == "" && in.LinodeID == nil {
		v.Add("region", "Must provide a region or a Linode ID.")
	}
	if in.Size != nil {
		checkRange(v, "size", *in.Size, minVolumeSize, maxVolumeSize)
	}
	return v.Err()
}

type volumeUpdateInput struct {
	Label *string   `json:"label,omitempty"`
	Tags  *[]string `json:"tags,omitempty"`
}

type volumeAttachInput struct {
	LinodeID int  `json:"linode_id"`
	ConfigID *int `json:"config_id"`
}

type volumeResizeInput struct {
	Size int `json:"size"`
}

// Volumes serves block storage volumes. Create, attach, detach and resize
// queue event sequences; status leaves creating or resizing once the
// sequence finishes. An attached volume refuses deletion.
func Volumes(state *core.MockState) router.HandlerSet {
	h := volumeHandlers{newEnv(state)}
	return router.HandlerSet{
		router.Get("*/v4*/volumes", h.list),
		router.Post("*/v4*/volumes", h.create),
		router.Get("*/v4*/volumes/:id", h.get),
		router.Put("*/v4*/volumes/:id", h.update),
		router.Delete("*/v4*/volumes/:id", h.delete),
		router.Post("*/v4*/volumes/:id/attach", h.attach),
		router.Post("*/v4*/volumes/:id/detach", h.detach),
		router.Post("*/v4*/volumes/:id/resize", h.resize),
	}
}

type volumeHandlers struct{ env }

func (h volumeHandlers) list(ctx context.Context, r *router.Request) response.Response {
	return list[domain.Volume](ctx, h.env, r, domain.TableVolumes)
}

func (h volumeHandlers) get(ctx context.Context, r *router.Request) response.Response {
	v, _, resp, ok := lookup[domain.Volume](ctx, h.env, r, "id", domain.TableVolumes)
	if !ok {
		return resp
	}
	return response.Make(v)
}

func (h volumeHandlers) linode(ctx context.Context, id int) (domain.Linode, error) {
	l, found, err := core.Get[domain.Linode](ctx, h.state, domain.TableLinodes, id)
	if err != nil {
		return l, err
	}
	if !found {
		return l, domain.NotFoundError{Table: domain.TableLinodes, ID: id}
	}
	return l, nil
}

func (h volumeHandlers) create(ctx context.Context, r *router.Request) response.Response {
	var in volumeCreateInput
	if err := r.Decode(&in); err != nil {
		return response.FromError(err)
	}
	if err := in.Validate(); err != nil {
		return response.FromError(err)
	}
	now := h.now()
	v := domain.Volume{
		Label:   in.Label,
		Region:  in.Region,
		Size:    defaultVolumeSize,
		Status:  domain.VolumeCreating,
		Tags:    orEmpty(in.Tags),
		Created: now,
		Updated: now,
	}
	if in.Size != nil {
		v.Size = *in.Size
	}
	if in.LinodeID != nil {
		l, err := h.linode(ctx, *in.LinodeID)
		if err != nil {
			return response.FromError(err)
		}
		if v.Region == "" {
			v.Region = l.Region
		}
		if v.Region != l.Region {
			return response.MakeFieldError("linode_id", "Volume and Linode must be in the same region.")
		}
		v.LinodeID = ptr(l.ID)
		v.LinodeLabel = ptr(l.Label)
	}
	v, err := core.Add(ctx, h.state, domain.TableVolumes, v)
	if err != nil {
		return response.FromError(err)
	}
	v.FilesystemPath = fmt.Sprintf("/dev/disk/by-id/scsi-0Linode_Volume_%s", v.Label)
	if v, err = core.Put(ctx, h.state, domain.TableVolumes, v.ID, v); err != nil {
		return response.FromError(err)
	}
	id := v.ID
	entity := volumeRef(v)
	h.queue(ctx, events.Input{
		Event:    domain.Event{Action: domain.ActionVolumeCreate, Entity: &entity},
		Sequence: events.Lifecycle(h.state.EventDelay),
		OnComplete: func(ctx context.Context) error {
			return h.setStatus(ctx, id, domain.VolumeActive)
		},
	})
	return response.Make(v)
}

func (h volumeHandlers) setStatus(ctx context.Context, id int, status domain.VolumeStatus) error {
	_, err := core.Update[domain.Volume](ctx, h.state, domain.TableVolumes, id, map[string]any{
		"status":  status,
		"updated": h.now(),
	})
	if isNotFound(err) {
		return nil
	}
	return err
}

func (h volumeHandlers) update(ctx context.Context, r *router.Request) response.Response {
	_, id, resp, ok := lookup[domain.Volume](ctx, h.env, r, "id", domain.TableVolumes)
	if !ok {
		return resp
	}
	var in volumeUpdateInput
	if err := r.Decode(&in); err != nil {
		return response.FromError(err)
	}
	if in.Label != nil {
		verr := &domain.ValidationError{}
		checkLabel(verr, "label", *in.Label, 1, 32)
		if err := verr.Err(); err != nil {
			return response.FromError(err)
		}
	}
	patch := struct {
		volumeUpdateInput
		Updated time.Time `json:"updated"`
	}{in, h.now()}
	v, err := core.Update[domain.Volume](ctx, h.state, domain.TableVolumes, id, patch)
	if err != nil {
		return response.FromError(err)
	}
	h.notify(ctx, domain.ActionVolumeUpdate, volumeRef(v))
	return response.Make(v)
}

func (h volumeHandlers) delete(ctx context.Context, r *router.Request) response.Response {
	v, id, resp, ok := lookup[domain.Volume](ctx, h.env, r, "id", domain.TableVolumes)
	if !ok {
		return resp
	}
	if v.LinodeID != nil {
		return response.MakeError(http.StatusBadRequest, "Volume must be detached before it can be deleted.")
	}
	if err := core.Delete(ctx, h.state, domain.TableVolumes, id); err != nil {
		return response.FromError(err)
	}
	h.notify(ctx, domain.ActionVolumeDelete, volumeRef(v))
	return response.Empty()
}

func (h volumeHandlers) attach(ctx context.Context, r *router.Request) response.Response {
	v, id, resp, ok := lookup[domain.Volume](ctx, h.env, r, "id", domain.TableVolumes)
	if !ok {
		return resp
	}
	var in volumeAttachInput
	if err := r.Decode(&in); err != nil {
		return response.FromError(err)
	}
	if in.LinodeID <= 0 {
		return response.MakeFieldError("linode_id", "linode_id is required.")
	}
	if v.LinodeID != nil {
		return response.MakeFieldError("linode_id", "Volume is already attached to a Linode.")
	}
	l, err := h.linode(ctx, in.LinodeID)
	if err != nil {
		return response.FromError(err)
	}
	if l.Region != v.Region {
		return response.MakeFieldError("linode_id", "Volume and Linode must be in the same region.")
	}
	v, err = core.Update[domain.Volume](ctx, h.state, domain.TableVolumes, id, map[string]any{
		"linode_id":    l.ID,
		"linode_label": l.Label,
		"updated":      h.now(),
	})
	if err != nil {
		return response.FromError(err)
	}
	entity := volumeRef(v)
	secondary := linodeRef(l)
	h.queue(ctx, events.Input{
		Event:    domain.Event{Action: domain.ActionVolumeAttach, Entity: &entity, SecondaryEntity: &secondary},
		Sequence: events.StartFinish(h.state.EventDelay),
	})
	return response.Make(v)
}

func (h volumeHandlers) detach(ctx context.Context, r *router.Request) response.Response {
	v, id, resp, ok := lookup[domain.Volume](ctx, h.env, r, "id", domain.TableVolumes)
	if !ok {
		return resp
	}
	if v.LinodeID == nil {
		return response.Empty()
	}
	if err := detachVolume(ctx, h.env, id); err != nil {
		return response.FromError(err)
	}
	entity := volumeRef(v)
	h.queue(ctx, events.Input{
		Event:    domain.Event{Action: domain.ActionVolumeDetach, Entity: &entity},
		Sequence: events.StartFinish(h.state.EventDelay),
	})
	return response.Empty()
}

func (h volumeHandlers) resize(ctx context.Context, r *router.Request) response.Response {
	v, id, resp, ok := lookup[domain.Volume](ctx, h.env, r, "id", domain.TableVolumes)
	if !ok {
		return resp
	}
	var in volumeResizeInput
	if err := r.Decode(&in); err != nil {
		return response.FromError(err)
	}
	switch {
	case in.Size <= v.Size:
		return response.MakeFieldError("size", "Volumes can only be resized up.")
	case in.Size > maxVolumeSize:
		return response.MakeFieldError("size", fmt.Sprintf("Must be at most %d.", maxVolumeSize))
	}
	v, err := core.Update[domain.Volume](ctx, h.state, domain.TableVolumes, id, map[string]any{
		"size":    in.Size,
		"status":  domain.VolumeResizing,
		"updated": h.now(),
	})
	if err != nil {
		return response.FromError(err)
	}
	entity := volumeRef(v)
	h.queue(ctx, events.Input{
		Event:    domain.Event{Action: domain.ActionVolumeResize, Entity: &entity},
		Sequence: events.StartFinish(h.state.EventDelay),
		OnComplete: func(ctx context.Context) error {
			return h.setStatus(ctx, id, domain.VolumeActive)
		},
	})
	return response.Make(v)
}

func detachVolume(ctx context.Context, e env, id int) error {
	_, err := core.Update[domain.Volume](ctx, e.state, domain.TableVolumes, id, map[string]any{
		"linode_id":    nil,
		"linode_label": nil,
		"updated":      e.now(),
	})
	return err
}

// detachLinodeVolumes clears the attachment of every volume on linodeID.
func detachLinodeVolumes(ctx context.Context, e env, linodeID int) error {
	all, err := core.GetAll[domain.Volume](ctx, e.state, domain.TableVolumes)
	if err != nil {
		return err
	}
	for _, v := range all {
		if v.LinodeID == nil || *v.LinodeID != linodeID {
			continue
		}
		if err := detachVolume(ctx, e, v.ID); err != nil {
			return err
		}
	}
	return nil
}
