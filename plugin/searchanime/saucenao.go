package searchanime

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

const (
	saucenaoAPI    = "https://saucenao.com/search.php"
	connectTimeout = 5 * time.Second
	requestTimeout = 15 * time.Second
	lowSimilarity  = 80.0
)

var (
	errNoMatch   = errors.New("没有找到番剧")
	errMalformed = errors.New("API返回数据格式错误")
)

// serviceError 上游返回的非 2xx 状态码
type serviceError int

func (e serviceError) Error() string {
	return "SauceNAO API请求失败: " + strconv.Itoa(int(e))
}

// classify 把错误映射为用户可读的提示，未分类的才落到兜底文案
func classify(err error) string {
	var serr serviceError
	if stderrors.As(err, &serr) {
		return serr.Error()
	}
	var uerr *url.Error
	if stderrors.As(err, &uerr) {
		switch {
		case uerr.Timeout():
			return "请求超时，请稍后重试"
		case uerr.Op == "parse":
			return "图片链接无效"
		default:
			return "网络连接异常，请稍后重试"
		}
	}
	switch {
	case stderrors.Is(err, errMalformed):
		return errMalformed.Error()
	case stderrors.Is(err, errNoImage):
		return errNoImage.Error()
	case stderrors.Is(err, errDownloadFailed):
		return errDownloadFailed.Error()
	}
	return "处理失败: " + err.Error()
}

type saucenaoClient struct {
	api    string
	apiKey string
	client *http.Client
}

func newSaucenaoClient(api, key string) *saucenaoClient {
	return &saucenaoClient{
		api:    api,
		apiKey: key,
		client: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
			},
		},
	}
}

type saucenaoResponse struct {
	Results []struct {
		Header struct {
			Similarity json.Number `json:"similarity"`
		} `json:"header"`
		Data struct {
			Source     string   `json:"source"`
			Title      string   `json:"title"`
			MemberName string   `json:"member_name"`
			Author     string   `json:"author"`
			ExtUrls    []string `json:"ext_urls"`
		} `json:"data"`
	} `json:"results"`
}

// recognition 识别结果，字段按备选链取首个非空值
type recognition struct {
	Similarity float64
	Source     string
	Author     string
	ExtURLs    []string
}

func (r *recognition) lowConfidence() bool { return r.Similarity < lowSimilarity }

func (r *recognition) resultText() string {
	warn := ""
	if r.lowConfidence() {
		warn = "相似度过低，可能不是同一番剧。建议：相同尺寸大小的截图; 去除四周的黑边\n\n"
	}
	text := fmt.Sprintf("%s番名: %s\n相似度: %.1f%%\n作者: %s\n", warn, r.Source, r.Similarity, r.Author)
	if len(r.ExtURLs) > 0 {
		text += "来源: " + r.ExtURLs[0] + "\n"
	}
	return text
}

// recognize 单次识别请求，失败不重试，避免重复消耗配额
func (c *saucenaoClient) recognize(img *acquiredImage) (*recognition, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if img.localPath != "" {
		f, err := os.Open(img.localPath)
		if err != nil {
			return nil, errors.Wrap(err, "读取本地图片失败")
		}
		fw, err := mw.CreateFormFile("file", filepath.Base(img.localPath))
		if err == nil {
			_, err = io.Copy(fw, f)
		}
		_ = f.Close()
		if err != nil {
			return nil, errors.Wrap(err, "构造上传表单失败")
		}
	} else {
		_ = mw.WriteField("url", img.sourceURL)
	}
	_ = mw.WriteField("api_key", c.apiKey)
	_ = mw.WriteField("db", "999")
	_ = mw.WriteField("output_type", "2")
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest("POST", c.api, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, serviceError(resp.StatusCode)
	}
	var payload saucenaoResponse
	if err = json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errMalformed
	}
	if len(payload.Results) == 0 {
		return nil, errNoMatch
	}
	best := payload.Results[0]
	sim, err := best.Header.Similarity.Float64()
	if err != nil {
		return nil, errMalformed
	}
	return &recognition{
		Similarity: sim,
		Source:     firstNonEmpty(best.Data.Source, best.Data.Title, "未知来源"),
		Author:     firstNonEmpty(best.Data.MemberName, best.Data.Author, "未知作者"),
		ExtURLs:    best.Data.ExtUrls,
	}, nil
}

func firstNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}
