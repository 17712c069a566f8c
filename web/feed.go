package web

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/deemkeen/anancus/util"
	"github.com/gorilla/feeds"
)

// GetFeed renders the most recent locally published activities as RSS,
// a cheap read-only window into the outbox for debugging and syndication.
func GetFeed(deps Deps) (string, error) {
	err, activities := deps.DB.ReadRecentOutboxActivities(50)
	if err != nil || activities == nil {
		log.Println("Could not get outbox activities!", err)
		return "", errors.New("error retrieving outbox activities")
	}

	link := fmt.Sprintf("https://%s/feed", deps.Conf.Conf.SslDomain)

	feed := &feeds.Feed{
		Title:       fmt.Sprintf("%s outbox", util.Name),
		Link:        &feeds.Link{Href: link},
		Description: fmt.Sprintf("activities published by %s", deps.Identity.ActorURI()),
		Author:      &feeds.Author{Name: deps.Identity.ActorName},
		Created:     time.Now(),
	}

	var feedItems []*feeds.Item
	for _, activity := range *activities {
		feedItems = append(feedItems,
			&feeds.Item{
				Id:      activity.ActivityURI,
				Title:   fmt.Sprintf("%s %s", activity.ActivityType, activity.CreatedAt.Format(util.DateTimeFormat())),
				Link:    &feeds.Link{Href: activity.ActivityURI},
				Content: activity.ActivityJSON,
				Author:  &feeds.Author{Name: activity.LocalActorId},
				Created: activity.CreatedAt,
			})
	}

	feed.Items = feedItems
	return feed.ToRss()
}
