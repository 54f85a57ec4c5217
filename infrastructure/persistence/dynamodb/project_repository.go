package dynamodb

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"go.uber.org/zap"

	"meterhub-backend/application/ports"
	"meterhub-backend/domain/entities"
	"meterhub-backend/domain/keys"
	apperrors "meterhub-backend/pkg/errors"
)

// ProjectRepository persists projects into the shared table.
type ProjectRepository struct {
	store  *Store
	logger *zap.Logger
}

// NewProjectRepository creates a project repository.
func NewProjectRepository(store *Store, logger *zap.Logger) ports.ProjectRepository {
	return &ProjectRepository{store: store, logger: logger}
}

// projectItem is the stored shape of a project.
type projectItem struct {
	PK       string `dynamodbav:"pk"`
	GSI1PK   string `dynamodbav:"gsi1pk"`
	GSI2PK   string `dynamodbav:"gsi2pk"`
	Data     string `dynamodbav:"data"`
	Owner    string `dynamodbav:"owner"`
	Name     string `dynamodbav:"name"`
	ImageURL string `dynamodbav:"imageUrl,omitempty"`
	AssetID  string `dynamodbav:"assetId,omitempty"`
	Created  int64  `dynamodbav:"created"`
}

func (r *ProjectRepository) Create(ctx context.Context, project *entities.Project) error {
	item := projectItem{
		PK:       keys.PK(keys.KindProject, project.ID),
		GSI1PK:   keys.BelongsTo(keys.KindUser, project.UserID),
		GSI2PK:   keys.TypePartition(keys.KindProject),
		Data:     keys.Encode(keys.KindProject, project.Status),
		Owner:    project.UserID,
		Name:     project.Name,
		ImageURL: project.ImageURL,
		Created:  project.Created,
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal project")
	}

	cond := NotExists()
	if err := r.store.Put(ctx, av, &cond); err != nil {
		if apperrors.IsNotFound(err) || apperrors.IsConflict(err) {
			return apperrors.NewConflictError("project already exists")
		}
		return err
	}

	r.logger.Debug("Project created",
		zap.String("projectID", project.ID),
		zap.String("userID", project.UserID),
	)
	return nil
}

func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*entities.Project, error) {
	item, err := r.store.Get(ctx, keys.PK(keys.KindProject, id))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, apperrors.NewNotFoundError("project")
	}
	return unmarshalProject(item)
}

func (r *ProjectRepository) ListByUser(ctx context.Context, userID string, opts ports.ListOptions) (ports.Page[*entities.Project], error) {
	return r.list(ctx, QuerySpec{
		Index:      IndexBelongsTo,
		KeyValue:   keys.BelongsTo(keys.KindUser, userID),
		DataPrefix: keys.KindProject + keys.Sep + opts.StatusPrefix,
		PageSize:   opts.PageSize,
		Token:      opts.Token,
		Forward:    opts.Forward,
	})
}

func (r *ProjectRepository) ListAll(ctx context.Context, opts ports.ListOptions) (ports.Page[*entities.Project], error) {
	return r.list(ctx, QuerySpec{
		Index:      IndexByType,
		KeyValue:   keys.TypePartition(keys.KindProject),
		DataPrefix: keys.KindProject + keys.Sep + opts.StatusPrefix,
		PageSize:   opts.PageSize,
		Token:      opts.Token,
		Forward:    opts.Forward,
	})
}

func (r *ProjectRepository) list(ctx context.Context, spec QuerySpec) (ports.Page[*entities.Project], error) {
	var page ports.Page[*entities.Project]

	items, nextToken, err := r.store.Query(ctx, spec)
	if err != nil {
		return page, err
	}

	page.Items = make([]*entities.Project, 0, len(items))
	for _, item := range items {
		project, err := unmarshalProject(item)
		if err != nil {
			r.logger.Warn("Skipping unreadable project item", zap.Error(err))
			continue
		}
		page.Items = append(page.Items, project)
	}
	page.NextToken = nextToken
	return page, nil
}

func (r *ProjectRepository) UpdateStatus(ctx context.Context, id, status string) error {
	update := expression.Set(
		expression.Name("data"),
		expression.Value(keys.Encode(keys.KindProject, status)),
	)
	if err := r.store.Update(ctx, keys.PK(keys.KindProject, id), update, nil); err != nil {
		if apperrors.IsNotFound(err) {
			return apperrors.NewNotFoundError("project")
		}
		return err
	}
	return nil
}

func (r *ProjectRepository) UpdateMeta(ctx context.Context, id, name, imageURL string) error {
	update := expression.Set(expression.Name("name"), expression.Value(name)).
		Set(expression.Name("imageUrl"), expression.Value(imageURL))
	if err := r.store.Update(ctx, keys.PK(keys.KindProject, id), update, nil); err != nil {
		if apperrors.IsNotFound(err) {
			return apperrors.NewNotFoundError("project")
		}
		return err
	}
	return nil
}

func (r *ProjectRepository) SetAssetID(ctx context.Context, id, assetID string) error {
	update := expression.Set(expression.Name("assetId"), expression.Value(assetID))
	if err := r.store.Update(ctx, keys.PK(keys.KindProject, id), update, nil); err != nil {
		if apperrors.IsNotFound(err) {
			return apperrors.NewNotFoundError("project")
		}
		return err
	}
	return nil
}

// Delete tombstones the project by default; permanent removes the item.
func (r *ProjectRepository) Delete(ctx context.Context, id string, permanent bool) error {
	if !permanent {
		return r.UpdateStatus(ctx, id, keys.StatusArchived)
	}
	if err := r.store.Delete(ctx, keys.PK(keys.KindProject, id), nil); err != nil {
		if apperrors.IsNotFound(err) {
			return apperrors.NewNotFoundError("project")
		}
		return err
	}
	return nil
}

func unmarshalProject(item Item) (*entities.Project, error) {
	var stored projectItem
	if err := attributevalue.UnmarshalMap(item, &stored); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal project")
	}
	return &entities.Project{
		ID:       strings.TrimPrefix(stored.PK, keys.KindProject+keys.Sep),
		UserID:   stored.Owner,
		Name:     stored.Name,
		ImageURL: stored.ImageURL,
		AssetID:  stored.AssetID,
		Status:   keys.Status(stored.Data),
		Created:  stored.Created,
	}, nil
}
