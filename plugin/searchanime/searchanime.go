// Package searchanime 以图搜番
package searchanime

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	ctrl "github.com/FloatTech/zbpctrl"
	control "github.com/FloatTech/zbputils/control"
	"github.com/FloatTech/zbputils/ctxext"
	tracemoe "github.com/fumiama/gotracemoe"
	"github.com/jozsefsallai/gophersauce"
	"github.com/sirupsen/logrus"
	zero "github.com/wdvxdr1123/ZeroBot"
	"github.com/wdvxdr1123/ZeroBot/message"
)

// 发起搜番后等待图片的时长
const waitTimeout = 30 * time.Second

var (
	engine = control.AutoRegister(&ctrl.Options[*zero.Ctx]{
		DisableOnDefault: false,
		Brief:            "以图搜番",
		Help: "- 搜番 (之后30秒内发送一张图片)\n" +
			"- 搜图 [图片]\n" +
			"- 设置搜番apikey xxx",
		PrivateDataFolder: "searchanime",
	})
	sessions    = &sessionStore{}
	apikeyFile  = engine.DataFolder() + "apikey.txt"
	sauceClient *gophersauce.Client
)

func init() {
	engine.OnFullMatch("搜番").SetBlock(true).Limit(ctxext.LimitByUser).Handle(handleTrigger)
	engine.OnMessage(hasPendingSession).SetBlock(false).Handle(handleFollowUp)
	engine.OnRegex(`^搜图`, zero.MustProvidePicture).SetBlock(true).Limit(ctxext.LimitByUser).Handle(handleInstantSearch)
	engine.OnPrefix("设置搜番apikey", zero.SuperUserPermission).SetBlock(true).Handle(func(ctx *zero.Ctx) {
		key := strings.TrimSpace(strings.TrimPrefix(ctx.ExtractPlainText(), "设置搜番apikey"))
		if key == "" {
			ctx.SendChain(message.Text("格式: 设置搜番apikey xxx"))
			return
		}
		if err := os.WriteFile(apikeyFile, []byte(key), 0600); err != nil {
			ctx.SendChain(message.Text("保存失败: ", err))
			return
		}
		ctx.SendChain(message.Text("保存成功"))
	})
}

func hasPendingSession(ctx *zero.Ctx) bool {
	return sessions.waiting(ctx.Event.UserID)
}

// handleTrigger 进入等待态。计时器不做取消，
// 到点后若会话已被图片路径取走则为空操作
func handleTrigger(ctx *zero.Ctx) {
	uid := ctx.Event.UserID
	if !sessions.begin(uid) {
		ctx.SendChain(message.Text("正在等你发图喵，请不要重复发送"))
		return
	}
	ctx.SendChain(message.Text("请在 30 秒内发送一张图片让我识别喵"))
	time.AfterFunc(waitTimeout, func() {
		if _, ok := sessions.take(uid); ok {
			ctx.SendChain(message.Text("🧐你没有发送图片，搜番请求已取消了喵"))
		}
	})
}

// handleFollowUp 等待期间的后续消息。先取走会话再跑识别，
// 识别耗时再久也不会被计时器打断
func handleFollowUp(ctx *zero.Ctx) {
	if _, ok := sessions.take(ctx.Event.UserID); !ok {
		return
	}
	img, err := acquireImage(ctx)
	if err != nil {
		ctx.SendChain(message.Text(classify(err)))
		return
	}
	defer img.cleanup()
	key, err := loadAPIKey()
	if err != nil {
		ctx.SendChain(message.Text("未配置 api key，请先由主人发送“设置搜番apikey xxx”"))
		return
	}
	res, err := newSaucenaoClient(saucenaoAPI, key).recognize(img)
	switch {
	case err == nil:
		ctx.SendChain(message.Text(res.resultText()))
	case errors.Is(err, errNoMatch):
		if text, ok := traceMoeFallback(img); ok {
			ctx.SendChain(message.Text(text))
			return
		}
		ctx.SendChain(message.Text("没有找到番剧"))
	default:
		logrus.Warnln("[searchanime] 识别失败:", err)
		ctx.SendChain(message.Text(classify(err)))
	}
}

// traceMoeFallback SauceNAO 无结果时用 trace.moe 兜底，传本地文件或URL均可
func traceMoeFallback(img *acquiredImage) (string, bool) {
	path := img.sourceURL
	if img.localPath != "" {
		path = img.localPath
	}
	res, err := tracemoe.NewMoe("").Search(path, true, false)
	if err != nil || res.Error != "" || len(res.Result) == 0 {
		return "", false
	}
	return traceMoeText(&res.Result[0]), true
}

func traceMoeText(a *tracemoe.Anime) string {
	return fmt.Sprintf(
		"trace.moe 匹配:\n文件: %s\n集数: %d\n时间点: 第 %.0f 秒\n相似度: %.1f%%",
		a.Filename, a.Episode, a.From, a.Similarity*100,
	)
}

// handleInstantSearch 搜图：图片随指令一起发送，直接查 SauceNAO
func handleInstantSearch(ctx *zero.Ctx) {
	urls, ok := ctx.State["image_url"].([]string)
	if !ok || len(urls) == 0 {
		ctx.SendChain(message.Text("未找到有效的图片数据"))
		return
	}
	key, err := loadAPIKey()
	if err != nil {
		ctx.SendChain(message.Text("未配置 api key，请先由主人发送“设置搜番apikey xxx”"))
		return
	}
	if sauceClient == nil {
		c, err := gophersauce.NewClient(&gophersauce.Settings{MaxResults: 1})
		if err != nil {
			ctx.SendChain(message.Text("处理失败: ", err))
			return
		}
		sauceClient = c
	}
	sauceClient.SetAPIKey(key)
	resp, err := sauceClient.FromURL(urls[0])
	if err != nil {
		logrus.Warnln("[searchanime] 搜图失败:", err)
		ctx.SendChain(message.Text("网络连接异常，请稍后重试"))
		return
	}
	if len(resp.Results) == 0 {
		ctx.SendChain(message.Text("没有找到相关图片"))
		return
	}
	ctx.SendChain(message.Reply(ctx.Event.MessageID), message.Text(instantResultText(&resp.Results[0])))
}

func instantResultText(first *gophersauce.SearchResult) string {
	sim, _ := strconv.ParseFloat(first.Header.Similarity, 64)
	text := fmt.Sprintf(
		"相似度: %.1f%%\n标题: %s\n作者: %s\n",
		sim,
		firstNonEmpty(first.Data.Title, "未知来源"),
		firstNonEmpty(first.Data.MemberName, "未知作者"),
	)
	if len(first.Data.ExternalURLs) > 0 {
		text += "来源: " + first.Data.ExternalURLs[0]
	}
	return text
}

func loadAPIKey() (string, error) {
	data, err := os.ReadFile(apikeyFile)
	if err != nil {
		return "", err
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", errors.New("api key 为空")
	}
	return key, nil
}
