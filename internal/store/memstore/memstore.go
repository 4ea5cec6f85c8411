// Package memstore is an in-memory implementation of the repositories in
// internal/store. It applies the same unique constraints and deletion rules
// as the SQL schema and is used to exercise services and handlers without a
// database.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yamdb/apiserver/internal/store"
	"github.com/yamdb/apiserver/types"
)

// Store holds every table behind one lock.
type Store struct {
	mu sync.Mutex

	nextID     int
	users      map[int]types.User
	categories map[int]types.Category
	genres     map[int]types.Genre
	titles     map[int]titleRow
	reviews    map[int]types.Review
	comments   map[int]types.Comment

	now func() time.Time
}

type titleRow struct {
	title      types.Title
	categoryID int
	genreIDs   []int
}

func New() *Store {
	return &Store{
		users:      make(map[int]types.User),
		categories: make(map[int]types.Category),
		genres:     make(map[int]types.Genre),
		titles:     make(map[int]titleRow),
		reviews:    make(map[int]types.Review),
		comments:   make(map[int]types.Comment),
		now:        time.Now,
	}
}

func (s *Store) Users() *UserRepository           { return &UserRepository{s: s} }
func (s *Store) Categories() *CategoryRepository { return &CategoryRepository{s: s} }
func (s *Store) Genres() *GenreRepository         { return &GenreRepository{s: s} }
func (s *Store) Titles() *TitleRepository         { return &TitleRepository{s: s} }
func (s *Store) Reviews() *ReviewRepository       { return &ReviewRepository{s: s} }
func (s *Store) Comments() *CommentRepository     { return &CommentRepository{s: s} }

func (s *Store) id() int {
	s.nextID++
	return s.nextID
}

// tick returns strictly increasing timestamps so pub_date ordering is stable.
func (s *Store) tick() time.Time {
	return s.now().Add(time.Duration(s.nextID) * time.Microsecond)
}

func conflict(constraint string) error {
	return &store.ConflictError{Constraint: constraint}
}

func window[T any](items []T, page types.PageRequest) []T {
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}
	limit := page.Limit
	if limit < 1 {
		limit = 20
	}
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return append([]T(nil), items[offset:end]...)
}

func containsFold(value, search string) bool {
	return strings.Contains(strings.ToLower(value), strings.ToLower(search))
}

// UserRepository is the in-memory counterpart of store.UserRepository.
type UserRepository struct{ s *Store }

func (r *UserRepository) find(match func(types.User) bool) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, user := range r.s.users {
		if match(user) {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *UserRepository) GetByID(_ context.Context, id int) (types.User, error) {
	return r.find(func(u types.User) bool { return u.ID == id })
}

func (r *UserRepository) GetByUsername(_ context.Context, username string) (types.User, error) {
	return r.find(func(u types.User) bool { return u.Username == username })
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (types.User, error) {
	return r.find(func(u types.User) bool { return u.Email == email })
}

func (r *UserRepository) List(_ context.Context, page types.PageRequest) ([]types.User, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	users := make([]types.User, 0, len(r.s.users))
	for _, user := range r.s.users {
		if page.Search == "" || containsFold(user.Username, page.Search) {
			users = append(users, user)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return window(users, page), len(users), nil
}

func (r *UserRepository) checkUnique(user types.User) error {
	for _, other := range r.s.users {
		if other.ID == user.ID {
			continue
		}
		if other.Username == user.Username {
			return conflict("users_username_key")
		}
		if other.Email == user.Email {
			return conflict("users_email_key")
		}
	}
	return nil
}

func (r *UserRepository) Create(_ context.Context, user types.User) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user.Normalize()
	user.ID = 0
	if err := r.checkUnique(user); err != nil {
		return types.User{}, err
	}
	user.ID = r.s.id()
	user.CreatedAt = r.s.now()
	user.UpdatedAt = user.CreatedAt
	r.s.users[user.ID] = user
	return user, nil
}

func (r *UserRepository) Update(_ context.Context, user types.User) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.users[user.ID]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	user.Normalize()
	if err := r.checkUnique(user); err != nil {
		return types.User{}, err
	}
	user.ConfirmationCodeHash = current.ConfirmationCodeHash
	user.ConfirmationCodeExpiresAt = current.ConfirmationCodeExpiresAt
	user.CreatedAt = current.CreatedAt
	user.UpdatedAt = r.s.now()
	r.s.users[user.ID] = user
	return user, nil
}

// Delete removes the user and, like ON DELETE CASCADE, everything they wrote.
func (r *UserRepository) Delete(_ context.Context, id int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.s.users, id)
	for reviewID, review := range r.s.reviews {
		if review.AuthorID == id {
			r.s.deleteReviewLocked(reviewID)
		}
	}
	for commentID, comment := range r.s.comments {
		if comment.AuthorID == id {
			delete(r.s.comments, commentID)
		}
	}
	return nil
}

func (r *UserRepository) SetConfirmationCode(_ context.Context, id int, codeHash string, expiresAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.ConfirmationCodeHash = codeHash
	user.ConfirmationCodeExpiresAt = &expiresAt
	r.s.users[id] = user
	return nil
}

func (r *UserRepository) RotateConfirmationCode(_ context.Context, id int, oldHash, newHash string, expiresAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.users[id]
	if !ok || user.ConfirmationCodeHash != oldHash {
		return store.ErrConflict
	}
	user.ConfirmationCodeHash = newHash
	user.ConfirmationCodeExpiresAt = &expiresAt
	r.s.users[id] = user
	return nil
}

// CategoryRepository is the in-memory counterpart of store.CategoryRepository.
type CategoryRepository struct{ s *Store }

func (r *CategoryRepository) List(_ context.Context, page types.PageRequest) ([]types.Category, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	items := make([]types.Category, 0, len(r.s.categories))
	for _, item := range r.s.categories {
		if page.Search == "" || containsFold(item.Name, page.Search) {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Name != items[j].Name {
			return items[i].Name < items[j].Name
		}
		return items[i].ID < items[j].ID
	})
	return window(items, page), len(items), nil
}

func (r *CategoryRepository) GetBySlug(_ context.Context, slug string) (types.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, item := range r.s.categories {
		if item.Slug == slug {
			return item, nil
		}
	}
	return types.Category{}, store.ErrNotFound
}

func (r *CategoryRepository) Create(_ context.Context, category types.Category) (types.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, item := range r.s.categories {
		if item.Slug == category.Slug {
			return types.Category{}, conflict("categories_slug_key")
		}
	}
	category.ID = r.s.id()
	r.s.categories[category.ID] = category
	return category, nil
}

// DeleteBySlug removes the category and clears it from titles (SET NULL).
func (r *CategoryRepository) DeleteBySlug(_ context.Context, slug string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, item := range r.s.categories {
		if item.Slug != slug {
			continue
		}
		delete(r.s.categories, id)
		for titleID, row := range r.s.titles {
			if row.categoryID == id {
				row.categoryID = 0
				r.s.titles[titleID] = row
			}
		}
		return nil
	}
	return store.ErrNotFound
}

// GenreRepository is the in-memory counterpart of store.GenreRepository.
type GenreRepository struct{ s *Store }

func (r *GenreRepository) List(_ context.Context, page types.PageRequest) ([]types.Genre, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	items := make([]types.Genre, 0, len(r.s.genres))
	for _, item := range r.s.genres {
		if page.Search == "" || containsFold(item.Name, page.Search) {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Name != items[j].Name {
			return items[i].Name < items[j].Name
		}
		return items[i].ID < items[j].ID
	})
	return window(items, page), len(items), nil
}

func (r *GenreRepository) GetBySlug(_ context.Context, slug string) (types.Genre, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, item := range r.s.genres {
		if item.Slug == slug {
			return item, nil
		}
	}
	return types.Genre{}, store.ErrNotFound
}

func (r *GenreRepository) Create(_ context.Context, genre types.Genre) (types.Genre, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, item := range r.s.genres {
		if item.Slug == genre.Slug {
			return types.Genre{}, conflict("genres_slug_key")
		}
	}
	genre.ID = r.s.id()
	r.s.genres[genre.ID] = genre
	return genre, nil
}

// DeleteBySlug removes the genre and detaches it from titles (CASCADE on the link table).
func (r *GenreRepository) DeleteBySlug(_ context.Context, slug string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, item := range r.s.genres {
		if item.Slug != slug {
			continue
		}
		delete(r.s.genres, id)
		for titleID, row := range r.s.titles {
			kept := row.genreIDs[:0:0]
			for _, genreID := range row.genreIDs {
				if genreID != id {
					kept = append(kept, genreID)
				}
			}
			row.genreIDs = kept
			r.s.titles[titleID] = row
		}
		return nil
	}
	return store.ErrNotFound
}

// TitleRepository is the in-memory counterpart of store.TitleRepository.
type TitleRepository struct{ s *Store }

// materialize resolves category, genres and rating the way the SQL join does.
func (s *Store) materialize(row titleRow) types.Title {
	title := row.title
	title.Category = nil
	if category, ok := s.categories[row.categoryID]; ok {
		c := category
		title.Category = &c
	}
	title.Genres = []types.Genre{}
	for _, id := range row.genreIDs {
		if genre, ok := s.genres[id]; ok {
			title.Genres = append(title.Genres, genre)
		}
	}
	sort.Slice(title.Genres, func(i, j int) bool { return title.Genres[i].Name < title.Genres[j].Name })

	sum, count := 0, 0
	for _, review := range s.reviews {
		if review.TitleID == title.ID {
			sum += review.Score
			count++
		}
	}
	title.Rating = nil
	if count > 0 {
		rating := float64(sum) / float64(count)
		title.Rating = &rating
	}
	return title
}

func matchesFilter(title types.Title, filter types.TitleFilter) bool {
	if filter.Name != "" && !strings.Contains(title.Name, filter.Name) {
		return false
	}
	if filter.Category != "" && (title.Category == nil || title.Category.Slug != filter.Category) {
		return false
	}
	if filter.Genre != "" {
		found := false
		for _, genre := range title.Genres {
			if genre.Slug == filter.Genre {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.Year != nil && title.Year != *filter.Year {
		return false
	}
	return true
}

func (r *TitleRepository) List(_ context.Context, filter types.TitleFilter, page types.PageRequest) ([]types.Title, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	titles := make([]types.Title, 0, len(r.s.titles))
	for _, row := range r.s.titles {
		title := r.s.materialize(row)
		if matchesFilter(title, filter) {
			titles = append(titles, title)
		}
	}
	sort.Slice(titles, func(i, j int) bool {
		if titles[i].Year != titles[j].Year {
			return titles[i].Year > titles[j].Year
		}
		return titles[i].ID < titles[j].ID
	})
	return window(titles, page), len(titles), nil
}

func (r *TitleRepository) Get(_ context.Context, id int) (types.Title, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.titles[id]
	if !ok {
		return types.Title{}, store.ErrNotFound
	}
	return r.s.materialize(row), nil
}

func (r *TitleRepository) Exists(_ context.Context, id int) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.titles[id]
	return ok, nil
}

func rowFromTitle(title types.Title) titleRow {
	row := titleRow{title: title}
	if title.Category != nil {
		row.categoryID = title.Category.ID
	}
	seen := make(map[int]bool, len(title.Genres))
	for _, genre := range title.Genres {
		if !seen[genre.ID] {
			seen[genre.ID] = true
			row.genreIDs = append(row.genreIDs, genre.ID)
		}
	}
	return row
}

func (r *TitleRepository) Create(_ context.Context, title types.Title) (types.Title, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	title.ID = r.s.id()
	title.CreatedAt = r.s.now()
	title.UpdatedAt = title.CreatedAt
	row := rowFromTitle(title)
	r.s.titles[title.ID] = row
	return r.s.materialize(row), nil
}

func (r *TitleRepository) Update(_ context.Context, title types.Title) (types.Title, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.titles[title.ID]
	if !ok {
		return types.Title{}, store.ErrNotFound
	}
	title.CreatedAt = current.title.CreatedAt
	title.UpdatedAt = r.s.now()
	row := rowFromTitle(title)
	r.s.titles[title.ID] = row
	return r.s.materialize(row), nil
}

// Delete removes the title with its reviews and their comments (CASCADE).
func (r *TitleRepository) Delete(_ context.Context, id int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.titles[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.s.titles, id)
	for reviewID, review := range r.s.reviews {
		if review.TitleID == id {
			r.s.deleteReviewLocked(reviewID)
		}
	}
	return nil
}

func (s *Store) deleteReviewLocked(id int) {
	delete(s.reviews, id)
	for commentID, comment := range s.comments {
		if comment.ReviewID == id {
			delete(s.comments, commentID)
		}
	}
}

func (s *Store) withAuthor(review types.Review) types.Review {
	review.Author = s.users[review.AuthorID].Username
	return review
}

// ReviewRepository is the in-memory counterpart of store.ReviewRepository.
type ReviewRepository struct{ s *Store }

func (r *ReviewRepository) List(_ context.Context, titleID int, page types.PageRequest) ([]types.Review, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	reviews := make([]types.Review, 0)
	for _, review := range r.s.reviews {
		if review.TitleID == titleID {
			reviews = append(reviews, r.s.withAuthor(review))
		}
	}
	sort.Slice(reviews, func(i, j int) bool {
		if !reviews[i].PubDate.Equal(reviews[j].PubDate) {
			return reviews[i].PubDate.After(reviews[j].PubDate)
		}
		return reviews[i].ID > reviews[j].ID
	})
	return window(reviews, page), len(reviews), nil
}

func (r *ReviewRepository) Get(_ context.Context, titleID, id int) (types.Review, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	review, ok := r.s.reviews[id]
	if !ok || review.TitleID != titleID {
		return types.Review{}, store.ErrNotFound
	}
	return r.s.withAuthor(review), nil
}

func (r *ReviewRepository) ExistsForAuthor(_ context.Context, titleID, authorID int) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, review := range r.s.reviews {
		if review.TitleID == titleID && review.AuthorID == authorID {
			return true, nil
		}
	}
	return false, nil
}

func (r *ReviewRepository) Create(_ context.Context, review types.Review) (types.Review, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, other := range r.s.reviews {
		if other.TitleID == review.TitleID && other.AuthorID == review.AuthorID {
			return types.Review{}, conflict("unique_review")
		}
	}
	review.ID = r.s.id()
	review.PubDate = r.s.tick()
	r.s.reviews[review.ID] = review
	return r.s.withAuthor(review), nil
}

func (r *ReviewRepository) Update(_ context.Context, review types.Review) (types.Review, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.reviews[review.ID]
	if !ok || current.TitleID != review.TitleID {
		return types.Review{}, store.ErrNotFound
	}
	current.Text = review.Text
	current.Score = review.Score
	r.s.reviews[review.ID] = current
	return r.s.withAuthor(current), nil
}

func (r *ReviewRepository) Delete(_ context.Context, titleID, id int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	review, ok := r.s.reviews[id]
	if !ok || review.TitleID != titleID {
		return store.ErrNotFound
	}
	r.s.deleteReviewLocked(id)
	return nil
}

// CommentRepository is the in-memory counterpart of store.CommentRepository.
type CommentRepository struct{ s *Store }

func (s *Store) commentWithAuthor(comment types.Comment) types.Comment {
	comment.Author = s.users[comment.AuthorID].Username
	return comment
}

func (r *CommentRepository) List(_ context.Context, reviewID int, page types.PageRequest) ([]types.Comment, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	comments := make([]types.Comment, 0)
	for _, comment := range r.s.comments {
		if comment.ReviewID == reviewID {
			comments = append(comments, r.s.commentWithAuthor(comment))
		}
	}
	sort.Slice(comments, func(i, j int) bool {
		if !comments[i].PubDate.Equal(comments[j].PubDate) {
			return comments[i].PubDate.After(comments[j].PubDate)
		}
		return comments[i].ID > comments[j].ID
	})
	return window(comments, page), len(comments), nil
}

func (r *CommentRepository) Get(_ context.Context, reviewID, id int) (types.Comment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	comment, ok := r.s.comments[id]
	if !ok || comment.ReviewID != reviewID {
		return types.Comment{}, store.ErrNotFound
	}
	return r.s.commentWithAuthor(comment), nil
}

func (r *CommentRepository) Create(_ context.Context, comment types.Comment) (types.Comment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.reviews[comment.ReviewID]; !ok {
		return types.Comment{}, store.ErrNotFound
	}
	comment.ID = r.s.id()
	comment.PubDate = r.s.tick()
	r.s.comments[comment.ID] = comment
	return r.s.commentWithAuthor(comment), nil
}

func (r *CommentRepository) Update(_ context.Context, comment types.Comment) (types.Comment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.comments[comment.ID]
	if !ok || current.ReviewID != comment.ReviewID {
		return types.Comment{}, store.ErrNotFound
	}
	current.Text = comment.Text
	r.s.comments[comment.ID] = current
	return r.s.commentWithAuthor(current), nil
}

func (r *CommentRepository) Delete(_ context.Context, reviewID, id int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	comment, ok := r.s.comments[id]
	if !ok || comment.ReviewID != reviewID {
		return store.ErrNotFound
	}
	delete(r.s.comments, id)
	return nil
}
