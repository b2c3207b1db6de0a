package scrapers

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/samvad-hq/daily-digest/internal/domain"
	"github.com/samvad-hq/daily-digest/internal/logger"
)

var bvidPattern = regexp.MustCompile(`video/(BV[A-Za-z0-9]+)`)

// ErrNoVideoID is returned when an item URL does not carry a BV id.
var ErrNoVideoID = errors.New("url has no bilibili video id")

// VideoContent is the enrichment payload for one Bilibili video.
type VideoContent struct {
	Title          string
	Description    string
	Transcript     string
	URL            string
	Uploader       string
	UploaderID     string
	UploaderAvatar string
	PublishDate    string
	Duration       string
	Views          int64
}

// Apply attaches the payload to item.
func (c VideoContent) Apply(item domain.ScrapedItem) domain.ScrapedItem {
	item.Transcript = c.Transcript
	item.Description = c.Description
	if c.Transcript != "" {
		item.FormattedContent = c.Format()
	}
	if item.AuthorAvatar == "" {
		item.AuthorAvatar = c.UploaderAvatar
	}
	if item.AuthorID == "" {
		item.AuthorID = c.UploaderID
	}
	return item
}

// Format renders the payload as a markdown document suitable for plain-text insertion.
func (c VideoContent) Format() string {
	or := func(v, fallback string) string {
		if strings.TrimSpace(v) == "" {
			return fallback
		}
		return v
	}
	views := "unknown"
	if c.Views > 0 {
		views = strconv.FormatInt(c.Views, 10)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", c.Title)
	b.WriteString("## Video info\n")
	fmt.Fprintf(&b, "- **Uploader**: %s\n", or(c.Uploader, "unknown"))
	fmt.Fprintf(&b, "- **Published**: %s\n", or(c.PublishDate, "unknown"))
	fmt.Fprintf(&b, "- **Link**: %s\n", c.URL)
	fmt.Fprintf(&b, "- **Views**: %s\n", views)
	fmt.Fprintf(&b, "- **Duration**: %s\n\n", or(c.Duration, "unknown"))
	b.WriteString("## Description\n")
	fmt.Fprintf(&b, "%s\n\n", or(c.Description, "none"))
	b.WriteString("## Transcript\n")
	fmt.Fprintf(&b, "%s\n", or(c.Transcript, "no transcript"))
	return b.String()
}

// BilibiliEnricher fetches video metadata and the subtitle track for Bilibili items.
type BilibiliEnricher struct {
	client  HTTPClient
	log     logger.Logger
	apiBase string
}

// NewBilibiliEnricher builds a BilibiliEnricher.
func NewBilibiliEnricher(client HTTPClient, log logger.Logger) *BilibiliEnricher {
	if client == nil {
		client = DefaultHTTPClient(0)
	}
	return &BilibiliEnricher{client: client, log: logger.Ensure(log), apiBase: bilibiliAPIBase}
}

type viewResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Title    string `json:"title"`
		Desc     string `json:"desc"`
		AID      int64  `json:"aid"`
		CID      int64  `json:"cid"`
		PubDate  int64  `json:"pubdate"`
		Duration int64  `json:"duration"`
		Owner    struct {
			Mid  int64  `json:"mid"`
			Name string `json:"name"`
			Face string `json:"face"`
		} `json:"owner"`
		Stat struct {
			View int64 `json:"view"`
		} `json:"stat"`
	} `json:"data"`
}

type playerResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Subtitle struct {
			Subtitles []subtitleTrack `json:"subtitles"`
		} `json:"subtitle"`
	} `json:"data"`
}

type subtitleTrack struct {
	Lan         string `json:"lan"`
	LanDoc      string `json:"lan_doc"`
	SubtitleURL string `json:"subtitle_url"`
}

type subtitleBody struct {
	Body []struct {
		Content string `json:"content"`
	} `json:"body"`
}

// Enrich returns the video payload for item. The transcript is only attempted with a credential;
// a video without subtitles yields content with an empty transcript.
func (e *BilibiliEnricher) Enrich(ctx context.Context, item domain.ScrapedItem, credential string) (*VideoContent, error) {
	m := bvidPattern.FindStringSubmatch(item.URL)
	if m == nil {
		return nil, fmt.Errorf("%s: %w", item.URL, ErrNoVideoID)
	}
	bvid := m[1]

	var view viewResponse
	if err := fetchJSON(ctx, e.client, e.apiBase+"/x/web-interface/view?bvid="+bvid, "bilibili view "+bvid,
		refererHeaders(bilibiliWebBase+"/", credential), &view); err != nil {
		return nil, err
	}
	if view.Code != 0 {
		return nil, fmt.Errorf("bilibili view %s: api code %d: %s", bvid, view.Code, view.Message)
	}

	d := view.Data
	content := &VideoContent{
		Title:          d.Title,
		Description:    d.Desc,
		URL:            item.URL,
		Uploader:       d.Owner.Name,
		UploaderAvatar: d.Owner.Face,
		Views:          d.Stat.View,
		Duration:       (time.Duration(d.Duration) * time.Second).String(),
	}
	if d.Owner.Mid != 0 {
		content.UploaderID = strconv.FormatInt(d.Owner.Mid, 10)
	}
	if d.PubDate > 0 {
		content.PublishDate = time.Unix(d.PubDate, 0).UTC().Format(time.DateOnly)
	}

	if strings.TrimSpace(credential) == "" {
		return content, nil
	}

	transcript, err := e.transcript(ctx, bvid, d.AID, d.CID, credential)
	if err != nil {
		e.log.WarnObj("bilibili transcript fetch failed", "bilibili_transcript_error", map[string]any{
			"bvid":  bvid,
			"title": item.Title,
			"error": err.Error(),
		})
		return content, nil
	}
	content.Transcript = transcript
	return content, nil
}

func (e *BilibiliEnricher) transcript(ctx context.Context, bvid string, aid, cid int64, credential string) (string, error) {
	u := fmt.Sprintf("%s/x/player/wbi/v2?cid=%d&aid=%d&bvid=%s", e.apiBase, cid, aid, bvid)
	var player playerResponse
	if err := fetchJSON(ctx, e.client, u, "bilibili player "+bvid, refererHeaders(bilibiliWebBase+"/video/"+bvid+"/", credential), &player); err != nil {
		return "", err
	}
	if player.Code != 0 {
		return "", fmt.Errorf("bilibili player %s: api code %d: %s", bvid, player.Code, player.Message)
	}

	tracks := player.Data.Subtitle.Subtitles
	if len(tracks) == 0 {
		return "", nil
	}
	track := tracks[0]
	for _, t := range tracks {
		if t.Lan == "zh-Hans" {
			track = t
			break
		}
	}

	subURL := track.SubtitleURL
	if strings.HasPrefix(subURL, "//") {
		subURL = "https:" + subURL
	}
	var body subtitleBody
	if err := fetchJSON(ctx, e.client, subURL, "bilibili subtitle "+bvid, refererHeaders(bilibiliWebBase+"/", ""), &body); err != nil {
		return "", err
	}
	lines := make([]string, 0, len(body.Body))
	for _, l := range body.Body {
		lines = append(lines, l.Content)
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}
