package handlers

import (
	"context"

	"meterhub-backend/application/ports"
	"meterhub-backend/domain/entities"
	apperrors "meterhub-backend/pkg/errors"
)

type fakeTrackerRepo struct {
	trackers map[string]*entities.Tracker
}

func newFakeTrackerRepo() *fakeTrackerRepo {
	return &fakeTrackerRepo{trackers: make(map[string]*entities.Tracker)}
}

func (f *fakeTrackerRepo) Create(ctx context.Context, tracker *entities.Tracker, userID string, isAdmin bool) error {
	f.trackers[tracker.ID] = tracker
	return nil
}

func (f *fakeTrackerRepo) GetByID(ctx context.Context, id string) (*entities.Tracker, error) {
	if t, ok := f.trackers[id]; ok {
		return t, nil
	}
	return nil, apperrors.NewNotFoundError("tracker")
}

func (f *fakeTrackerRepo) ListByPlace(ctx context.Context, placeID string, opts ports.ListOptions) (ports.Page[*entities.Tracker], error) {
	var page ports.Page[*entities.Tracker]
	for _, t := range f.trackers {
		if t.PlaceID == placeID {
			page.Items = append(page.Items, t)
		}
	}
	return page, nil
}

func (f *fakeTrackerRepo) SetUtility(ctx context.Context, id string, account entities.UtilityAccount) error {
	t, ok := f.trackers[id]
	if !ok {
		return apperrors.NewNotFoundError("tracker")
	}
	t.Utility = &account
	return nil
}

func (f *fakeTrackerRepo) RemoveUtility(ctx context.Context, id string) error {
	t, ok := f.trackers[id]
	if !ok {
		return apperrors.NewNotFoundError("tracker")
	}
	t.Utility = nil
	return nil
}

func (f *fakeTrackerRepo) Delete(ctx context.Context, id string, permanent bool) error {
	delete(f.trackers, id)
	return nil
}

type ingestCall struct {
	trackerID string
	placeID   string
	userID    string
	isAdmin   bool
	readings  []entities.ReadingInput
}

type fakeReadingRepo struct {
	calls     []ingestCall
	ingestErr error
}

func (f *fakeReadingRepo) Ingest(ctx context.Context, trackerID, placeID, userID string, isAdmin bool, readings []entities.ReadingInput) error {
	f.calls = append(f.calls, ingestCall{trackerID, placeID, userID, isAdmin, readings})
	return f.ingestErr
}

func (f *fakeReadingRepo) GetByID(ctx context.Context, id string) (*entities.Reading, error) {
	return nil, apperrors.NewNotFoundError("reading")
}

func (f *fakeReadingRepo) ListByTracker(ctx context.Context, trackerID string, opts ports.ListOptions) (ports.Page[*entities.Reading], error) {
	return ports.Page[*entities.Reading]{}, nil
}

type fakeProjectRepo struct {
	projects map[string]*entities.Project
	statuses map[string]string
	assetIDs map[string]string
}

func newFakeProjectRepo() *fakeProjectRepo {
	return &fakeProjectRepo{
		projects: make(map[string]*entities.Project),
		statuses: make(map[string]string),
		assetIDs: make(map[string]string),
	}
}

func (f *fakeProjectRepo) Create(ctx context.Context, project *entities.Project) error {
	f.projects[project.ID] = project
	return nil
}

func (f *fakeProjectRepo) GetByID(ctx context.Context, id string) (*entities.Project, error) {
	if p, ok := f.projects[id]; ok {
		return p, nil
	}
	return nil, apperrors.NewNotFoundError("project")
}

func (f *fakeProjectRepo) ListByUser(ctx context.Context, userID string, opts ports.ListOptions) (ports.Page[*entities.Project], error) {
	var page ports.Page[*entities.Project]
	for _, p := range f.projects {
		if p.UserID == userID {
			page.Items = append(page.Items, p)
		}
	}
	return page, nil
}

func (f *fakeProjectRepo) ListAll(ctx context.Context, opts ports.ListOptions) (ports.Page[*entities.Project], error) {
	var page ports.Page[*entities.Project]
	for _, p := range f.projects {
		page.Items = append(page.Items, p)
	}
	return page, nil
}

func (f *fakeProjectRepo) UpdateStatus(ctx context.Context, id, status string) error {
	f.statuses[id] = status
	return nil
}

func (f *fakeProjectRepo) UpdateMeta(ctx context.Context, id, name, imageURL string) error {
	return nil
}

func (f *fakeProjectRepo) SetAssetID(ctx context.Context, id, assetID string) error {
	f.assetIDs[id] = assetID
	return nil
}

func (f *fakeProjectRepo) Delete(ctx context.Context, id string, permanent bool) error {
	return nil
}

type fakeUserRepo struct {
	users map[string]*entities.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*entities.User)}
}

func (f *fakeUserRepo) Create(ctx context.Context, user *entities.User) error {
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*entities.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, apperrors.NewNotFoundError("user")
}

func (f *fakeUserRepo) GetByOAuthID(ctx context.Context, oauthID string) (*entities.User, error) {
	for _, u := range f.users {
		if u.OAuthID == oauthID {
			return u, nil
		}
	}
	return nil, apperrors.NewNotFoundError("user")
}

func (f *fakeUserRepo) SetWallet(ctx context.Context, id, wallet string) error {
	if u, ok := f.users[id]; ok {
		u.Wallet = wallet
	}
	return nil
}

type fakeAssetClient struct {
	assetID string
	err     error
	minted  []string
}

func (f *fakeAssetClient) MintAsset(ctx context.Context, projectID, wallet string) (string, error) {
	f.minted = append(f.minted, projectID)
	return f.assetID, f.err
}

func (f *fakeAssetClient) GetAsset(ctx context.Context, assetID string) (map[string]any, error) {
	return map[string]any{"id": assetID}, nil
}

type fakePublisher struct {
	events []string
}

func (f *fakePublisher) Publish(ctx context.Context, detailType string, detail any) error {
	f.events = append(f.events, detailType)
	return nil
}
