// Package moe 随机二次元图片
package moe

import (
	"io"
	"net/http"

	ctrl "github.com/FloatTech/zbpctrl"
	control "github.com/FloatTech/zbputils/control"
	"github.com/FloatTech/zbputils/ctxext"
	trshttp "github.com/fumiama/terasu/http"
	"github.com/mroth/weightedrand"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	zero "github.com/wdvxdr1123/ZeroBot"
	"github.com/wdvxdr1123/ZeroBot/message"
)

var (
	engine = control.AutoRegister(&ctrl.Options[*zero.Ctx]{
		DisableOnDefault: false,
		Brief:            "随机二次元图片",
		Help:             "- moe",
	})
	// 桌面端图源质量更好，权重更高
	sources = []weightedrand.Choice{
		weightedrand.NewChoice("https://t.mwm.moe/pc/", 3),
		weightedrand.NewChoice("https://www.loliapi.com/acg/pc/", 3),
		weightedrand.NewChoice("https://t.mwm.moe/mp", 2),
		weightedrand.NewChoice("https://www.loliapi.com/acg/", 2),
	}
)

func init() {
	engine.OnFullMatch("moe").SetBlock(true).Limit(ctxext.LimitByUser).Handle(func(ctx *zero.Ctx) {
		for _, url := range shuffledSources() {
			data, err := fetchMoe(url)
			if err != nil {
				logrus.Warnln("[moe] 从", url, "获取图片失败:", err, "尝试下一个图源")
				continue
			}
			ctx.SendChain(message.ImageBytes(data))
			return
		}
		ctx.SendChain(message.Text("获取图片失败，请稍后重试"))
	})
}

// shuffledSources 按权重抽签排出全部图源，每个只出现一次，
// 保证失败时其余图源都会被轮到
func shuffledSources() []string {
	order := make([]string, 0, len(sources))
	seen := make(map[string]struct{}, len(sources))
	chooser, err := weightedrand.NewChooser(sources...)
	if err != nil {
		for _, c := range sources {
			order = append(order, c.Item.(string))
		}
		return order
	}
	for len(order) < len(sources) {
		url := chooser.Pick().(string)
		if _, ok := seen[url]; ok {
			continue
		}
		seen[url] = struct{}{}
		order = append(order, url)
	}
	return order
}

func fetchMoe(url string) ([]byte, error) {
	resp, err := trshttp.Get(url)
	if err != nil {
		resp, err = http.Get(url)
	}
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("status code: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
