// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
	"golang.org/x/net/html"
)

const (
	// defaultFetchTimeout は保存済み画像の取得タイムアウト。
	defaultFetchTimeout = 15 * time.Second
	// MaxImageBytes は取得・アップロードを受け付ける画像の最大サイズ。
	MaxImageBytes = 16 << 20
	// maxPageBytes は商品ページから画像URLを探す際に読み込むHTMLの上限。
	maxPageBytes = 1 << 20
)

// ErrNotImage は取得したコンテンツが画像でない場合のエラー。
var ErrNotImage = errors.New("fetched content is not an image")

// ErrImageTooLarge は画像がサイズ上限を超えた場合のエラー。
var ErrImageTooLarge = errors.New("image exceeds size limit")

// allowedSchemes は画像取得で許可されるURLスキーム。
var allowedSchemes = []string{"http", "https"}

// blockedNetworks は事前検証でブロックするネットワーク範囲。
// 実際の接続時はsafeurlがDNS解決後のIPを検証するため、DNS再バインディングにも対応する。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		// クラウドメタデータIP (169.254.169.254) を含む
		"169.254.0.0/16",
		"0.0.0.0/8",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

// FetchedImage は取得した画像。
type FetchedImage struct {
	Data        []byte
	ContentType string
	Filename    string
}

// ImageFetcher は保存済み画像のURLからSSRF対策付きで画像を取得する。
// 再分類のために画像URLを取得する際に使う。
type ImageFetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewImageFetcher はSSRF防止機能付きのImageFetcherを生成する。
// プライベートIP、ループバック、リンクローカル、メタデータIPへの接続はsafeurlがブロックする。
func NewImageFetcher() *ImageFetcher {
	config := safeurl.GetConfigBuilder().
		SetTimeout(defaultFetchTimeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	return &ImageFetcher{
		client:   safeurl.Client(config).Client,
		maxBytes: MaxImageBytes,
	}
}

// Fetch は画像URLを取得する。
// 商品ページ（text/html）の場合はog:imageまたはtwitter:imageの画像を1段だけ辿る。
// どちらでもない場合はErrNotImageを返す。
func (f *ImageFetcher) Fetch(ctx context.Context, rawURL string) (*FetchedImage, error) {
	return f.fetch(ctx, rawURL, true)
}

func (f *ImageFetcher) fetch(ctx context.Context, rawURL string, followPage bool) (*FetchedImage, error) {
	if err := ValidateURL(rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create image request: %w", err)
	}
	req.Header.Set("Accept", "image/*, text/html;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image host returned status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	mediaType = strings.ToLower(mediaType)

	if mediaType == "text/html" && followPage {
		page, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
		if err != nil {
			return nil, fmt.Errorf("failed to read product page: %w", err)
		}
		imageURL := ProductImageFromHTML(page, rawURL)
		if imageURL == "" {
			return nil, ErrNotImage
		}
		return f.fetch(ctx, imageURL, false)
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return nil, ErrNotImage
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, ErrImageTooLarge
	}

	return &FetchedImage{
		Data:        data,
		ContentType: contentType,
		Filename:    filenameFromURL(rawURL),
	}, nil
}

// productImageProperties は商品画像として扱うmetaタグのプロパティ。先頭ほど優先する。
var productImageProperties = []string{"og:image:secure_url", "og:image", "twitter:image"}

// ProductImageFromHTML は商品ページのhead内metaタグから代表画像のURLを取り出す。
// 相対URLはbaseURLを基準に解決する。見つからない場合は空文字を返す。
func ProductImageFromHTML(page []byte, baseURL string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}

	found := make(map[string]string)
	tokenizer := html.NewTokenizer(bytes.NewReader(page))
	for done := false; !done; {
		switch tokenizer.Next() {
		case html.ErrorToken:
			done = true

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			tagName := string(tn)
			if tagName == "body" {
				done = true
				continue
			}
			if tagName != "meta" || !hasAttr {
				continue
			}

			var property, content string
			for {
				key, val, more := tokenizer.TagAttr()
				switch strings.ToLower(string(key)) {
				case "property", "name":
					property = strings.ToLower(string(val))
				case "content":
					content = strings.TrimSpace(string(val))
				}
				if !more {
					break
				}
			}
			if property != "" && content != "" {
				if _, ok := found[property]; !ok {
					found[property] = content
				}
			}

		case html.EndTagToken:
			if tn, _ := tokenizer.TagName(); string(tn) == "head" {
				done = true
			}
		}
	}

	for _, prop := range productImageProperties {
		raw, ok := found[prop]
		if !ok {
			continue
		}
		ref, err := url.Parse(raw)
		if err != nil {
			continue
		}
		return base.ResolveReference(ref).String()
	}
	return ""
}

// ValidateURL はURLの安全性を事前に検証する。
// DNS解決を伴わない静的な検証であり、DNS再バインディングは接続時にsafeurlが防ぐ。
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("disallowed scheme: %s (allowed: %v)", scheme, allowedSchemes)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		for _, network := range blockedNetworks {
			if network.Contains(ip) {
				return fmt.Errorf("blocked IP address: %s", ip.String())
			}
		}
		return nil
	}

	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}
	return nil
}

func filenameFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "image"
	}
	name := parsed.Path[strings.LastIndex(parsed.Path, "/")+1:]
	if name == "" {
		return "image"
	}
	return name
}
