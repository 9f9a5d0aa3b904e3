package searchanime

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	zero "github.com/wdvxdr1123/ZeroBot"
)

const (
	ua = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/132.0.0.0 Safari/537.36"

	maxDownloadAttempts = 3
	downloadTimeout     = 10 * time.Second
)

// 测试会调小间隔
var downloadBackoff = time.Second

var (
	errNoImage        = errors.New("未找到有效的图片数据")
	errDownloadFailed = errors.New("图片下载失败，请重试")
)

// platform 消息来源平台的能力描述
type platform struct {
	name          string
	needsDownload bool // 图源不允许第三方服务直接访问，需本地中转
	referer       string
}

// 受限平台表，图片必须下载后以文件形式上传
var constrainedPlatforms = map[string]platform{
	"gewechat":     {name: "gewechat", needsDownload: true, referer: "https://weixin.qq.com/"},
	"wechatpadpro": {name: "wechatpadpro", needsDownload: true, referer: "https://weixin.qq.com/"},
}

func platformOf(ctx *zero.Ctx) platform {
	name := ctx.Event.RawEvent.Get("platform").String()
	if p, ok := constrainedPlatforms[name]; ok {
		return p
	}
	return platform{name: name}
}

// acquiredImage 单次搜番尝试持有的图片。
// localPath 非空时文件归本次尝试所有，结束时必须 cleanup
type acquiredImage struct {
	sourceURL string
	localPath string
}

func (a *acquiredImage) cleanup() {
	if a != nil && a.localPath != "" {
		_ = os.Remove(a.localPath)
	}
}

// acquireImage 从消息中解析图片，受限平台强制本地下载
func acquireImage(ctx *zero.Ctx) (*acquiredImage, error) {
	var picURL string
	for _, seg := range ctx.Event.Message {
		if seg.Type == "image" {
			picURL = seg.Data["url"]
			break
		}
	}
	plat := platformOf(ctx)
	if picURL == "" && plat.needsDownload {
		picURL = ctx.Event.RawEvent.Get("image").String()
	}
	if picURL == "" {
		return nil, errNoImage
	}
	if !plat.needsDownload {
		return &acquiredImage{sourceURL: picURL}, nil
	}
	local, err := downloadImage(picURL, plat.referer)
	if err != nil {
		return nil, err
	}
	return &acquiredImage{sourceURL: picURL, localPath: local}, nil
}

// downloadImage 带重试的中转下载，每次尝试对临时文件整体覆盖写入
func downloadImage(url, referer string) (string, error) {
	client := &http.Client{Timeout: downloadTimeout}
	dst := filepath.Join(os.TempDir(), "searchanime-"+uuid.NewString()+".jpg")
	var lasterr error
	for i := 0; i < maxDownloadAttempts; i++ {
		if i > 0 {
			time.Sleep(downloadBackoff)
		}
		data, err := fetchImage(client, url, referer)
		if err != nil {
			lasterr = err
			continue
		}
		if err = os.WriteFile(dst, data, 0644); err != nil {
			lasterr = err
			continue
		}
		return dst, nil
	}
	_ = os.Remove(dst) // 写入失败时可能留下半截文件
	return "", errors.Wrapf(errDownloadFailed, "%d 次尝试均失败: %v", maxDownloadAttempts, lasterr)
}

func fetchImage(client *http.Client, url, referer string) ([]byte, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", ua)
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("下载失败, HTTP状态码: %d", resp.StatusCode)
	}
	if resp.Body == http.NoBody {
		return nil, errors.New("下载失败, 无内容")
	}
	return io.ReadAll(resp.Body)
}
