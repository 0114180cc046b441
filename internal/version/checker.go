package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Version is the running build's version. Release builds set it with
// -ldflags "-X github.com/a-marczewski/skillforge/internal/version.Version=x.y.z".
var Version = "0.1.0"

const (
	defaultAPIBaseURL = "https://api.github.com"
	defaultRepo       = "a-marczewski/skillforge"
)

// Release represents a GitHub release
type Release struct {
	TagName string `json:"tag_name"`
	Name    string `json:"name"`
}

// Checker looks up the latest published release.
type Checker struct {
	BaseURL string
	Repo    string
	Client  *http.Client
}

// CheckForUpdates checks GitHub for a newer version of SkillForge.
func CheckForUpdates(ctx context.Context) (string, error) {
	return (&Checker{}).Latest(ctx, Version)
}

// Latest returns the newest released version if it is newer than current,
// or "" when current is up to date or nothing has been released.
func (c *Checker) Latest(ctx context.Context, current string) (string, error) {
	baseURL := strings.TrimRight(c.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultAPIBaseURL
	}
	repo := c.Repo
	if repo == "" {
		repo = defaultRepo
	}
	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/repos/%s/releases/latest", baseURL, repo), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "SkillForge-Version-Checker")
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil // No releases found
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("github api returned status %d", resp.StatusCode)
	}

	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return "", err
	}

	latestVersion := strings.TrimPrefix(release.TagName, "v")
	if IsNewer(current, latestVersion) {
		return latestVersion, nil
	}
	return "", nil
}

// IsNewer compares two version strings and returns true if latest is newer than current
func IsNewer(current, latest string) bool {
	if latest == "" {
		return false
	}

	cParts := strings.Split(strings.TrimPrefix(current, "v"), ".")
	lParts := strings.Split(latest, ".")

	for i := 0; i < len(cParts) && i < len(lParts); i++ {
		cVal, _ := strconv.Atoi(cParts[i])
		lVal, _ := strconv.Atoi(lParts[i])

		if lVal > cVal {
			return true
		}
		if lVal < cVal {
			return false
		}
	}

	return len(lParts) > len(cParts)
}
