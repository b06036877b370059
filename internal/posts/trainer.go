package posts

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"imagepool/internal/cover"
	"imagepool/internal/domain"
	"imagepool/internal/maintainer"
)

// TrainFunc runs one training pass. See maintainer.Maintainer.Train.
type TrainFunc func(ctx context.Context, article domain.Article) (maintainer.Report, error)

// Options select the posts of one run.
type Options struct {
	Dir     string        // posts directory, e.g. content/posts
	NewsDir string        // holds news_<slug>.json; empty disables news titles
	Window  time.Duration // posts modified within this long ago
	Limit   int
}

// PostResult is the outcome for one post.
type PostResult struct {
	Post   string             `json:"post"`
	Slug   string             `json:"slug"`
	Result *maintainer.Report `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// Summary is the outcome of Trainer.Run.
type Summary struct {
	Count   int          `json:"count"`
	Failed  int          `json:"failed"`
	Trained []PostResult `json:"trained"`
}

// Trainer trains the pool on every recent post in turn.
type Trainer struct {
	fs    afero.Fs
	train TrainFunc
	log   logrus.FieldLogger
	nowFn func() time.Time
}

// NewTrainer creates a Trainer reading posts from fs.
func NewTrainer(fs afero.Fs, train TrainFunc, logger logrus.FieldLogger) *Trainer {
	return &Trainer{
		fs:    fs,
		train: train,
		log:   logger.WithField("component", "daily_train"),
		nowFn: time.Now,
	}
}

// Run trains on the posts selected by opts. A post that cannot be read or
// trained on is recorded in the summary and the run moves on; only a failure
// to list the posts, or cancellation, ends it early.
func (t *Trainer) Run(ctx context.Context, opts Options) (Summary, error) {
	since := t.nowFn().Add(-opts.Window)
	found, err := Recent(t.fs, opts.Dir, since, opts.Limit)
	if err != nil {
		return Summary{}, err
	}
	t.log.WithFields(logrus.Fields{"dir": opts.Dir, "posts": len(found)}).Info("Training on recent posts")

	summary := Summary{Trained: []PostResult{}}
	for _, p := range found {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		res := t.trainPost(ctx, p.Path, opts.NewsDir)
		if res.Error != "" {
			summary.Failed++
		}
		summary.Trained = append(summary.Trained, res)
	}
	summary.Count = len(summary.Trained)

	t.log.WithFields(logrus.Fields{"count": summary.Count, "failed": summary.Failed}).Info("Daily training finished")
	return summary, nil
}

func (t *Trainer) trainPost(ctx context.Context, path, newsDir string) PostResult {
	res := PostResult{Post: filepath.Base(path), Slug: stem(path)}
	log := t.log.WithField("post", res.Post)

	article, err := LoadArticle(t.fs, log, path, "", "", "")
	if errors.Is(err, ErrNoIndustry) {
		article.Industry = DefaultIndustry
	} else if err != nil {
		log.WithError(err).Warn("Skipping unreadable post")
		res.Error = err.Error()
		return res
	}
	if article.Slug != "" {
		res.Slug = article.Slug
	}
	if article.Title == "" {
		article.Title = stem(path)
	}

	if newsDir != "" {
		news, err := cover.LoadNews(t.fs, filepath.Join(newsDir, fmt.Sprintf("news_%s.json", res.Slug)))
		if err != nil {
			log.WithError(err).Warn("Ignoring unreadable news JSON")
		}
		for _, it := range news {
			if it.Title != "" {
				article.NewsTitles = append(article.NewsTitles, it.Title)
			}
		}
	}

	report, err := t.train(ctx, article)
	if err != nil {
		log.WithError(err).Error("Training failed for post")
		res.Error = err.Error()
		return res
	}
	res.Result = &report
	return res
}
